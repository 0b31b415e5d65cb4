package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoCredentials is returned when a refresh produced nothing usable.
var ErrNoCredentials = errors.New("credential: no bearer token available")

// Store is the process-wide credential cache. All methods are safe for
// concurrent use, and at most one Fetch is in flight at any time.
type Store struct {
	provider Provider
	leeway   time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu  sync.RWMutex
	cur *Credential

	sf singleflight.Group
}

func NewStore(p Provider, leeway time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{provider: p, leeway: leeway, log: log, now: time.Now}
}

// Get returns the cached credential when it is present and unexpired.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil || !s.cur.ValidAt(s.now(), s.leeway) {
		return Credential{}, false
	}
	return *s.cur, true
}

// EnsureValid returns the cached credential, refreshing first if it is missing
// or expired. Repeated calls with a valid cache never touch the provider.
func (s *Store) EnsureValid(ctx context.Context) (Credential, error) {
	if c, ok := s.Get(); ok {
		return c, nil
	}
	return s.do(ctx, false)
}

// Refresh fetches a new credential and replaces the cached one. Concurrent
// callers share a single fetch. A failed refresh leaves the cache as it was.
func (s *Store) Refresh(ctx context.Context) (Credential, error) {
	return s.do(ctx, true)
}

func (s *Store) do(ctx context.Context, force bool) (Credential, error) {
	v, err, _ := s.sf.Do("refresh", func() (any, error) {
		// A caller that lost the race to an earlier flight finds the cache filled.
		if !force {
			if c, ok := s.Get(); ok {
				return c, nil
			}
		}
		return s.fetch(ctx)
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (s *Store) fetch(ctx context.Context) (Credential, error) {
	c, err := s.provider.Fetch(ctx)
	if err != nil {
		metrics.CredentialRefresh.WithLabelValues("failure").Inc()
		s.log.Error("credential refresh failed", zap.Error(err))
		return Credential{}, err
	}
	if c.Token == "" {
		metrics.CredentialRefresh.WithLabelValues("failure").Inc()
		return Credential{}, ErrNoCredentials
	}
	metrics.CredentialRefresh.WithLabelValues("success").Inc()
	s.mu.Lock()
	s.cur = &c
	s.mu.Unlock()
	s.log.Info("credential refreshed", zap.Time("expiry", c.Expiry))
	return c, nil
}

// Invalidate drops the cached credential if it still holds token. A token that
// was already replaced by a newer refresh is left alone.
func (s *Store) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.cur.Token == token {
		s.cur = nil
		s.log.Warn("credential invalidated after rejection")
	}
}
