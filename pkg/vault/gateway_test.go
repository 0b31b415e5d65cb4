package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/credential"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenSource struct {
	calls atomic.Int32
	ttl   func(n int32) time.Duration
	err   error
}

func (s *tokenSource) Fetch(context.Context) (credential.Credential, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return credential.Credential{}, s.err
	}
	ttl := time.Hour
	if s.ttl != nil {
		ttl = s.ttl(n)
	}
	return credential.Credential{Token: fmt.Sprintf("bearer-%d", n), Expiry: time.Now().Add(ttl)}, nil
}

func vaultConfig(url string) manifest.Vault {
	return manifest.Vault{URL: url, VaultID: "v1", Table: "users", TimeoutMS: 5000, MaxInFlight: 4}
}

func newGateway(t *testing.T, srv *httptest.Server, src *tokenSource, mutate ...func(*manifest.Vault)) *Gateway {
	t.Helper()
	cfg := vaultConfig(srv.URL)
	for _, m := range mutate {
		m(&cfg)
	}
	g, err := NewGateway(context.Background(), cfg, credential.NewStore(src, 0, nil), srv.Client(), nil)
	require.NoError(t, err)
	return g
}

func TestInsertBuildsRequest(t *testing.T) {
	var got InsertRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, path = r.Header.Get("Authorization"), r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"records":[
			{"skyflowID":"abc","tokens":{"email":[{"token":"tok1"}]}},
			{"error":"dup","httpCode":409}
		],"unused":true}`))
	}))
	defer srv.Close()

	g := newGateway(t, srv, &tokenSource{}, func(v *manifest.Vault) {
		v.Upsert = &manifest.Upsert{UpdateType: "update", UniqueColumns: []string{"email"}}
	})

	batch := []map[string]any{{"email": "a@x.io", "age": 31}, {"email": "b@x.io"}}
	resp, err := g.Insert(context.Background(), batch).Result()
	require.NoError(t, err)

	assert.Equal(t, "Bearer bearer-1", auth)
	assert.Equal(t, insertPath, path)
	assert.Equal(t, "v1", got.VaultID)
	assert.Equal(t, "users", got.TableName)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "a@x.io", got.Records[0].Data["email"])
	require.NotNil(t, got.Upsert)
	assert.Equal(t, "UPDATE", got.Upsert.UpdateType)
	assert.Equal(t, []string{"email"}, got.Upsert.UniqueColumns)

	require.Len(t, resp.Records, 2)
	assert.Equal(t, "abc", resp.Records[0].SkyflowID)
	assert.Empty(t, resp.Records[1].SkyflowID)
	assert.Equal(t, "dup", resp.Records[1].Error)
	assert.Equal(t, 409, resp.Records[1].HTTPCode)
}

func TestInsertEmptyBatchSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	g := newGateway(t, srv, &tokenSource{})
	f := g.Insert(context.Background(), nil)

	select {
	case <-f.Done():
	default:
		t.Fatal("empty batch future should already be resolved")
	}
	resp, err := f.Result()
	require.NoError(t, err)
	assert.Empty(t, resp.Records)
	assert.Zero(t, hits.Load())
}

func TestInsertNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"table not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	g := newGateway(t, srv, &tokenSource{})
	_, err := g.Insert(context.Background(), []map[string]any{{"a": 1}}).Result()

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "table not found")
}

func TestInsertNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	g := newGateway(t, srv, &tokenSource{})
	srv.Close()

	_, err := g.Insert(context.Background(), []map[string]any{{"a": 1}}).Result()
	assert.Error(t, err)
}

func TestUnauthorizedForcesRefreshOnNextInsert(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		first := len(seen) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	src := &tokenSource{}
	g := newGateway(t, srv, src)

	_, err := g.Insert(context.Background(), []map[string]any{{"a": 1}}).Result()
	require.Error(t, err)

	_, err = g.Insert(context.Background(), []map[string]any{{"a": 2}}).Result()
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer bearer-1", "Bearer bearer-2"}, seen)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestExpiredCredentialRefreshedOncePerInsertWave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	src := &tokenSource{ttl: func(n int32) time.Duration {
		if n == 1 {
			return 50 * time.Millisecond
		}
		return time.Hour
	}}
	g := newGateway(t, srv, src)
	require.EqualValues(t, 1, src.calls.Load())

	time.Sleep(100 * time.Millisecond)

	futures := make([]*Future, 6)
	for i := range futures {
		futures[i] = g.Insert(context.Background(), []map[string]any{{"i": i}})
	}
	for _, f := range futures {
		_, err := f.Result()
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestNewGatewayFailsWithoutCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := NewGateway(context.Background(), vaultConfig(srv.URL),
		credential.NewStore(&tokenSource{err: errors.New("idp unreachable")}, 0, nil), srv.Client(), nil)
	assert.ErrorContains(t, err, "idp unreachable")
}

func TestNewGatewayRejectsPlainHTTPRemote(t *testing.T) {
	_, err := NewGateway(context.Background(), vaultConfig("http://vault.example.com"),
		credential.NewStore(&tokenSource{}, 0, nil), nil, nil)
	assert.Error(t, err)
}

func TestDrainWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	g := newGateway(t, srv, &tokenSource{})
	f := g.Insert(context.Background(), []map[string]any{{"a": 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Drain(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, g.Drain(context.Background()))
	_, err := f.Result()
	assert.NoError(t, err)
}
