package engine

import (
	"context"
	"sync"
)

// Runner owns the single worker goroutine of a run function. Start and Stop may
// be called from any goroutine; Stop is cooperative and only cancels the
// context the run function watches.
type Runner struct {
	run    func(ctx context.Context) error
	onExit func(err error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewRunner wraps run. onExit, if set, is called from the worker goroutine
// with run's result once it returns.
func NewRunner(run func(ctx context.Context) error, onExit func(err error)) *Runner {
	return &Runner{run: run, onExit: onExit}
}

// Start launches the worker. It returns false when one is already running.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.lastErr = nil

	go func() {
		err := r.run(runCtx)
		cancel()

		r.mu.Lock()
		r.lastErr = err
		r.cancel = nil
		r.done = nil
		r.mu.Unlock()

		if r.onExit != nil {
			r.onExit(err)
		}
		close(done)
	}()

	return true
}

// Stop asks the worker to stop and returns immediately
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.done != nil
}

// Wait blocks until the current worker, if any, has exited and returns the
// error of the last run.
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
