package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendermint/neosync/libs/log"
)

// Routines supervises a set of named background loops sharing one
// cancellation scope. A loop that returns a non-nil error cancels its
// siblings; the first such error is reported by Wait.
type Routines struct {
	logger log.Logger

	mtx    sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRoutines creates a supervisor derived from ctx.
func NewRoutines(ctx context.Context, logger log.Logger) *Routines {
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	return &Routines{
		logger: logger,
		ctx:    gctx,
		cancel: cancel,
		group:  group,
	}
}

// Context returns the context shared by all supervised loops.
func (r *Routines) Context() context.Context { return r.ctx }

// Go runs fn in its own goroutine until it returns or the supervisor is
// stopped. Context cancellation is not treated as a failure.
func (r *Routines) Go(name string, fn func(context.Context) error) {
	r.group.Go(func() error {
		err := fn(r.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}

		r.logger.Error("routine failed", "routine", name, "err", err)
		return err
	})
}

// Every runs fn each interval until the supervisor is stopped. Errors
// returned by fn are logged and do not stop the loop.
func (r *Routines) Every(name string, interval time.Duration, fn func(context.Context)) {
	r.Go(name, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// Stop cancels every loop and blocks until all of them have returned.
func (r *Routines) Stop() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.cancel()
	return r.group.Wait()
}

// Wait blocks until every loop has returned without canceling them.
func (r *Routines) Wait() error {
	return r.group.Wait()
}
