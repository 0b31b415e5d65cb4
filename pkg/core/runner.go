package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/scheduler"
	"github.com/joeydtaylor/steeze-vault/pkg/stream"
	"go.uber.org/zap"
)

const (
	fetchRetryDelay = time.Second
	commitTimeout   = 10 * time.Second
)

// Dispatcher is satisfied by *scheduler.Scheduler.
type Dispatcher interface {
	RunMicroBatch(ctx context.Context, mb *stream.MicroBatch) *scheduler.Pending
}

// Runner drives the micro-batch loop: fetch, dispatch, await termination,
// commit offsets. Offsets are committed even when the await times out, so
// continuations still running at that point are best-effort.
type Runner struct {
	src   stream.Source
	sched Dispatcher
	await time.Duration
	log   *zap.Logger

	ready   atomic.Bool
	batches atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	onExit func(error)
}

func NewRunner(src stream.Source, sched Dispatcher, await time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{src: src, sched: sched, await: await, log: log.With(zap.String("component", "runner"))}
}

// Ready reports whether the source has answered at least one poll.
func (r *Runner) Ready() bool { return r.ready.Load() }

// MicroBatches is the number of non-empty micro-batches processed.
func (r *Runner) MicroBatches() int64 { return r.batches.Load() }

// Run loops until ctx ends or the source is closed.
func (r *Runner) Run(ctx context.Context) error {
	for {
		mb, err := r.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			r.log.Error("fetch micro-batch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}
		r.ready.Store(true)
		if mb.Empty() {
			continue
		}
		r.process(ctx, mb)
	}
}

func (r *Runner) process(ctx context.Context, mb *stream.MicroBatch) {
	n := r.batches.Add(1)
	log := r.log.With(zap.Int64("microBatch", n))

	// Dispatched batches run to completion even if the runner is stopping.
	p := r.sched.RunMicroBatch(context.WithoutCancel(ctx), mb)
	log.Info("micro-batch dispatched",
		zap.Int("fetched", mb.Fetched),
		zap.Int("skipped", mb.Skipped),
		zap.Int("partitions", len(mb.Partitions)),
		zap.Int("batches", p.Dispatched()))

	if !p.AwaitTermination(r.await) {
		log.Warn("termination timeout elapsed, committing with batches in flight", zap.Duration("timeout", r.await))
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := r.src.Commit(cctx, mb); err != nil {
		log.Error("commit offsets", zap.Error(err))
	}
}

// OnExit registers fn to be called when the loop ends on its own with an
// error, such as a closed source. It is not called after Stop.
func (r *Runner) OnExit(fn func(error)) {
	r.mu.Lock()
	r.onExit = fn
	r.mu.Unlock()
}

// Start runs the loop on its own goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		if err := r.Run(ctx); err != nil {
			r.log.Error("runner stopped", zap.Error(err))
			r.mu.Lock()
			r.err = err
			fn := r.onExit
			r.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		}
	}()
}

// Stop cancels the loop and waits for it, or for ctx to end.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
