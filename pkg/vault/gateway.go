package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/codec"
	"github.com/joeydtaylor/steeze-vault/pkg/credential"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// HTTPDoer is satisfied by *http.Client and allows easy mocking in tests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Gateway turns record batches into insert requests. Insert never blocks; the
// request runs on its own goroutine and resolves the returned Future.
type Gateway struct {
	endpoint string
	vaultID  string
	table    string
	upsert   *Upsert
	timeout  time.Duration

	creds *credential.Store
	hc    HTTPDoer
	sem   *semaphore.Weighted
	log   *zap.Logger

	wg sync.WaitGroup
}

// NewGateway validates cfg and makes sure a credential can be obtained before
// any batch is accepted. An error here aborts the job.
func NewGateway(ctx context.Context, cfg manifest.Vault, creds *credential.Store, hc HTTPDoer, log *zap.Logger) (*Gateway, error) {
	if err := manifest.CheckVaultURL(cfg.URL); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if _, err := creds.EnsureValid(ctx); err != nil {
		return nil, fmt.Errorf("vault gateway: initial credential: %w", err)
	}

	maxInFlight := int64(cfg.MaxInFlight)
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	g := &Gateway{
		endpoint: strings.TrimRight(cfg.URL, "/") + insertPath,
		vaultID:  cfg.VaultID,
		table:    cfg.Table,
		timeout:  cfg.Timeout(),
		creds:    creds,
		hc:       hc,
		sem:      semaphore.NewWeighted(maxInFlight),
		log:      log.With(zap.String("component", "vault")),
	}
	if u := cfg.Upsert; u != nil {
		g.upsert = &Upsert{UpdateType: strings.ToUpper(u.UpdateType), UniqueColumns: append([]string(nil), u.UniqueColumns...)}
	}
	return g, nil
}

// Insert submits batch asynchronously. An empty batch resolves at once to an
// empty response without touching the network.
func (g *Gateway) Insert(ctx context.Context, batch []map[string]any) *Future {
	if len(batch) == 0 {
		return Resolved(&InsertResponse{}, nil)
	}
	metrics.VaultBatches.WithLabelValues("dispatched").Inc()

	f := newFuture()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		resp, err := g.insert(ctx, batch)
		if err != nil {
			metrics.VaultBatches.WithLabelValues("failed").Inc()
		} else {
			metrics.VaultBatches.WithLabelValues("succeeded").Inc()
		}
		f.resolve(resp, err)
	}()
	return f
}

func (g *Gateway) insert(ctx context.Context, batch []map[string]any) (*InsertResponse, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	cred, err := g.creds.EnsureValid(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault insert: credential: %w", err)
	}

	records := make([]InsertRecord, len(batch))
	for i, r := range batch {
		records[i] = InsertRecord{Data: r}
	}
	body, err := codec.JSONStrict.Marshal(InsertRequest{
		VaultID:   g.vaultID,
		TableName: g.table,
		Records:   records,
		Upsert:    g.upsert,
	})
	if err != nil {
		return nil, fmt.Errorf("vault insert: encode: %w", err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", codec.JSONStrict.ContentType())
	req.Header.Set("Accept", "application/json")

	metrics.VaultRecordsSubmitted.Add(float64(len(batch)))
	start := time.Now()
	res, err := g.hc.Do(req)
	metrics.VaultInsertSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("vault insert: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("vault insert: read body: %w", err)
	}
	if res.StatusCode == http.StatusUnauthorized {
		// The next Insert refreshes before it submits.
		g.creds.Invalidate(cred.Token)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{StatusCode: res.StatusCode, Body: string(raw)}
	}

	var out InsertResponse
	if err := codec.JSONLenient.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("vault insert: decode: %w", err)
	}
	g.log.Debug("batch inserted", zap.Int("records", len(batch)), zap.Int("outcomes", len(out.Records)))
	return &out, nil
}

// Drain waits for every in-flight insert, or for ctx to end.
func (g *Gateway) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
