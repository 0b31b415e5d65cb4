package vault

import "context"

// Future is the pending result of one Insert. It resolves exactly once.
type Future struct {
	done chan struct{}
	resp *InsertResponse
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

// Resolved returns a future that already holds resp and err.
func Resolved(resp *InsertResponse, err error) *Future {
	f := newFuture()
	f.resolve(resp, err)
	return f
}

// Pending returns an unresolved future and the function that resolves it. The
// function must be called exactly once.
func Pending() (*Future, func(*InsertResponse, error)) {
	f := newFuture()
	return f, f.resolve
}

func (f *Future) resolve(resp *InsertResponse, err error) {
	f.resp, f.err = resp, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the future resolves.
func (f *Future) Result() (*InsertResponse, error) {
	<-f.done
	return f.resp, f.err
}

// Wait is Result bounded by ctx. Giving up on the wait does not cancel the insert.
func (f *Future) Wait(ctx context.Context) (*InsertResponse, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
