// Package scheduler slices each partition of a micro-batch into vault insert
// batches and chains extraction and publishing onto each batch's completion.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-vault/pkg/stream"
	"github.com/joeydtaylor/steeze-vault/pkg/tokens"
	"github.com/joeydtaylor/steeze-vault/pkg/vault"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Inserter is satisfied by *vault.Gateway.
type Inserter interface {
	Insert(ctx context.Context, batch []map[string]any) *vault.Future
}

// EventPublisher is satisfied by *publisher.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, events []tokens.Event) int
}

type Scheduler struct {
	gw        Inserter
	pub       EventPublisher
	batchSize int
	log       *zap.Logger

	// inflight spans every continuation across micro-batches, for Drain.
	inflight sync.WaitGroup
}

func New(gw Inserter, pub EventPublisher, batchSize int, log *zap.Logger) *Scheduler {
	if batchSize < 1 {
		batchSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{gw: gw, pub: pub, batchSize: batchSize, log: log.With(zap.String("component", "scheduler"))}
}

// Slice cuts records into consecutive batches of size, the last possibly
// shorter. The batches share records' backing array.
func Slice(records []stream.Record, size int) [][]stream.Record {
	if len(records) == 0 || size < 1 {
		return nil
	}
	out := make([][]stream.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end:end])
	}
	return out
}

// Pending tracks the completion continuations of one micro-batch.
type Pending struct {
	wg         sync.WaitGroup
	dispatched int
	started    time.Time
}

func (p *Pending) Dispatched() int { return p.dispatched }

// AwaitTermination waits up to timeout for every continuation of the
// micro-batch. It reports false on timeout; continuations still running keep
// going and finish on their own.
func (p *Pending) AwaitTermination(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		metrics.MicroBatchSeconds.Observe(time.Since(p.started).Seconds())
		return true
	case <-t.C:
		return false
	}
}

// RunMicroBatch dispatches every partition of mb concurrently and returns once
// all batches are dispatched, not completed. ctx must outlive the micro-batch:
// continuations run with it.
func (s *Scheduler) RunMicroBatch(ctx context.Context, mb *stream.MicroBatch) *Pending {
	p := &Pending{started: time.Now()}
	if mb == nil {
		return p
	}

	counts := make([]int, len(mb.Partitions))
	var g errgroup.Group
	for i, part := range mb.Partitions {
		g.Go(func() error {
			counts[i] = s.runPartition(ctx, part, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, n := range counts {
		p.dispatched += n
	}
	return p
}

// RunPartition is RunMicroBatch for a single partition.
func (s *Scheduler) RunPartition(ctx context.Context, part stream.Partition) *Pending {
	p := &Pending{started: time.Now()}
	p.dispatched = s.runPartition(ctx, part, p)
	return p
}

// runPartition forms batches in order and dispatches each one without waiting
// on earlier ones. Publish order across batches is therefore not guaranteed.
func (s *Scheduler) runPartition(ctx context.Context, part stream.Partition, p *Pending) int {
	batches := Slice(part.Records, s.batchSize)
	for i, batch := range batches {
		f := s.gw.Insert(ctx, batch)
		metrics.VaultInFlight.Inc()
		p.wg.Add(1)
		s.inflight.Add(1)
		go s.complete(ctx, p, part.ID, i, len(batch), f)
	}
	return len(batches)
}

func (s *Scheduler) complete(ctx context.Context, p *Pending, partition, seq, size int, f *vault.Future) {
	defer s.inflight.Done()
	defer p.wg.Done()
	defer metrics.VaultInFlight.Dec()

	log := s.log.With(zap.Int("partition", partition), zap.Int("batch", seq), zap.Int("records", size))

	resp, err := f.Result()
	if err != nil {
		log.Error("vault insert failed, batch dropped", zap.Error(err))
		return
	}

	events := tokens.Extract(resp)
	if dropped := len(resp.Records) - len(events); dropped > 0 {
		metrics.VaultRecordsDropped.Add(float64(dropped))
		log.Warn("records without identifier dropped", zap.Int("dropped", dropped))
	}
	published := s.pub.Publish(ctx, events)
	log.Info("batch tokenized", zap.Int("events", len(events)), zap.Int("published", published))
}

// Drain waits for every dispatched continuation, including those a micro-batch
// stopped waiting on after its termination timeout. Close the publisher only
// after Drain returns.
func (s *Scheduler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
