// Package credential owns the vault bearer token: minting it from a service
// account, caching it, and refreshing it when it lapses or the vault rejects it.
package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joeydtaylor/steeze-vault/pkg/codec"
)

// Credential is a bearer token plus the instant it stops being accepted.
type Credential struct {
	Token  string
	Expiry time.Time
}

// ValidAt reports whether the token can still be presented at now, keeping
// leeway in reserve so a request does not race the expiry.
func (c Credential) ValidAt(now time.Time, leeway time.Duration) bool {
	if c.Token == "" || c.Expiry.IsZero() {
		return false
	}
	return now.Add(leeway).Before(c.Expiry)
}

// ServiceAccount is the credentials file issued by the vault's identity provider.
type ServiceAccount struct {
	ClientID   string `json:"clientID"`
	ClientName string `json:"clientName"`
	KeyID      string `json:"keyID"`
	TokenURI   string `json:"tokenURI"`
	PrivateKey string `json:"privateKey"`
}

// ParseServiceAccount decodes a credentials file. Key metadata the provider
// ships alongside (validity window, algorithm) is ignored.
func ParseServiceAccount(b []byte) (ServiceAccount, error) {
	var sa ServiceAccount
	if err := codec.JSONLenient.Unmarshal(b, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("service account: %w", err)
	}
	var missing []string
	if sa.ClientID == "" {
		missing = append(missing, "clientID")
	}
	if sa.KeyID == "" {
		missing = append(missing, "keyID")
	}
	if sa.TokenURI == "" {
		missing = append(missing, "tokenURI")
	}
	if sa.PrivateKey == "" {
		missing = append(missing, "privateKey")
	}
	if len(missing) > 0 {
		return ServiceAccount{}, fmt.Errorf("service account: missing %s", strings.Join(missing, ", "))
	}
	return sa, nil
}

// ExpiryOf reads the exp claim of a JWT without verifying its signature. The
// relay only needs to know when to refresh; the vault does the verifying.
func ExpiryOf(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse bearer: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("parse bearer: no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
