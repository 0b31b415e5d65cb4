package credential

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joeydtaylor/steeze-vault/pkg/codec"
)

const (
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
)

// Provider mints a fresh credential. It never consults a cache.
type Provider interface {
	Fetch(ctx context.Context) (Credential, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Credential, error)

func (f ProviderFunc) Fetch(ctx context.Context) (Credential, error) { return f(ctx) }

// HTTPDoer is satisfied by *http.Client and allows easy mocking in tests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ServiceAccountProvider signs an RS256 assertion with the service account key
// and exchanges it at the account's token URI.
type ServiceAccountProvider struct {
	sa  ServiceAccount
	key *rsa.PrivateKey
	hc  HTTPDoer
	now func() time.Time
}

func NewServiceAccountProvider(sa ServiceAccount, hc HTTPDoer) (*ServiceAccountProvider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("service account private key: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &ServiceAccountProvider{sa: sa, key: key, hc: hc, now: time.Now}, nil
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	Assertion string `json:"assertion"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

func (p *ServiceAccountProvider) assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": p.sa.ClientID,
		"key": p.sa.KeyID,
		"aud": p.sa.TokenURI,
		"sub": p.sa.ClientID,
		"exp": now.Add(assertionLifetime).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.key)
}

func (p *ServiceAccountProvider) Fetch(ctx context.Context) (Credential, error) {
	now := p.now()
	signed, err := p.assertion(now)
	if err != nil {
		return Credential{}, fmt.Errorf("sign assertion: %w", err)
	}

	body, err := codec.JSONStrict.Marshal(tokenRequest{GrantType: grantTypeJWTBearer, Assertion: signed})
	if err != nil {
		return Credential{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sa.TokenURI, bytes.NewReader(body))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", codec.JSONStrict.ContentType())
	req.Header.Set("Accept", "application/json")

	res, err := p.hc.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Credential{}, fmt.Errorf("token exchange: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Credential{}, fmt.Errorf("token exchange %s: %s: %s", p.sa.TokenURI, res.Status, bytes.TrimSpace(raw))
	}

	var tr tokenResponse
	if err := codec.JSONLenient.Unmarshal(raw, &tr); err != nil {
		return Credential{}, fmt.Errorf("token exchange: %w", err)
	}
	if tr.AccessToken == "" {
		return Credential{}, fmt.Errorf("token exchange %s: empty accessToken", p.sa.TokenURI)
	}

	exp, err := ExpiryOf(tr.AccessToken)
	if err != nil {
		// Opaque tokens get the assertion's lifetime.
		exp = now.Add(assertionLifetime)
	}
	return Credential{Token: tr.AccessToken, Expiry: exp}, nil
}
