package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceAccountProviderFetch(t *testing.T) {
	key, pemKey := testKeyPEM(t)
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	bearer := bearerExpiring(t, exp)

	var calls atomic.Int32
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		assert.Equal(t, grantTypeJWTBearer, body["grant_type"])

		claims := jwt.MapClaims{}
		_, err := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})).ParseWithClaims(body["assertion"], claims, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		})
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "c1", claims["iss"])
		assert.Equal(t, "c1", claims["sub"])
		assert.Equal(t, "k1", claims["key"])
		assert.Equal(t, srvURL, claims["aud"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"` + bearer + `","tokenType":"Bearer"}`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	p, err := NewServiceAccountProvider(ServiceAccount{ClientID: "c1", KeyID: "k1", TokenURI: srv.URL, PrivateKey: pemKey}, srv.Client())
	require.NoError(t, err)

	c, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bearer, c.Token)
	assert.True(t, exp.Equal(c.Expiry))
	assert.EqualValues(t, 1, calls.Load())
}

func TestServiceAccountProviderRejected(t *testing.T) {
	_, pemKey := testKeyPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewServiceAccountProvider(ServiceAccount{ClientID: "c1", KeyID: "k1", TokenURI: srv.URL, PrivateKey: pemKey}, srv.Client())
	require.NoError(t, err)

	_, err = p.Fetch(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestServiceAccountProviderOpaqueToken(t *testing.T) {
	_, pemKey := testKeyPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"opaque","tokenType":"Bearer"}`))
	}))
	defer srv.Close()

	p, err := NewServiceAccountProvider(ServiceAccount{ClientID: "c1", KeyID: "k1", TokenURI: srv.URL, PrivateKey: pemKey}, srv.Client())
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	c, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque", c.Token)
	assert.Equal(t, now.Add(assertionLifetime), c.Expiry)
}

func TestNewServiceAccountProviderBadKey(t *testing.T) {
	_, err := NewServiceAccountProvider(ServiceAccount{PrivateKey: "nope"}, nil)
	assert.Error(t, err)
}
