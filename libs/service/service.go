package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tendermint/neosync/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped once.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Stop terminates the service. It is safe to call Stop after the
	// context passed to Start has been canceled.
	Stop() error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service's context is canceled.
	OnStop()
}

// BaseService implements the bookkeeping shared by every long-running
// component of the node. Embedders provide OnStart and OnStop.
//
//	type Syncer struct {
//		service.BaseService
//		// private fields
//	}
//
//	func NewSyncer(logger log.Logger) *Syncer {
//		s := &Syncer{}
//		s.BaseService = *service.NewBaseService(logger, "Syncer", s)
//		return s
//	}
//
// OnStart receives a context that is canceled when Stop is called or when the
// parent context passed to Start ends, so goroutines spawned from OnStart
// can simply select on ctx.Done().
type BaseService struct {
	logger log.Logger
	name   string

	mtx     sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	quit    chan struct{}

	// The "subclass" of BaseService
	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. An error will be
// returned if the service is already running or stopped.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.started {
		return ErrAlreadyStarted
	}
	if bs.stopped {
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name)

	srvCtx, cancel := context.WithCancel(ctx)
	if err := bs.impl.OnStart(srvCtx); err != nil {
		cancel()
		return err
	}

	bs.started = true
	bs.cancel = cancel

	go func() {
		select {
		case <-bs.quit:
			// someone else explicitly called stop
		case <-srvCtx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopped service", "err", err, "service", bs.name)
			}
		}
	}()

	return nil
}

// Stop implements Service by calling OnStop and closing the quit channel.
// An error will be returned if the service is already stopped.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	if bs.stopped {
		bs.mtx.Unlock()
		return ErrAlreadyStopped
	}
	if !bs.started {
		bs.mtx.Unlock()
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	}
	bs.stopped = true
	bs.mtx.Unlock()

	bs.logger.Info("stopping service", "service", bs.name)
	bs.cancel()
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
