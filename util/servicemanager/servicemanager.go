// Package servicemanager runs a named set of long-lived services under one
// context, starting each on its own goroutine with panic recovery and
// aggregating their health for the node's /health endpoints.
package servicemanager

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mr-pandabear/pandanode/ulogger"
)

const stopTimeout = 10 * time.Second

// Service is the contract every long-running component (HostManager,
// Mempool, the block-acceptance pipeline) satisfies to be managed here.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (int, string, error)
}

type entry struct {
	name    string
	service Service
}

// ServiceManager starts, stops, and health-checks a fixed set of services
// registered with AddService, all sharing one cancellable context.
type ServiceManager struct {
	logger ulogger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	services []entry

	errOnce sync.Once
	errCh   chan error
	wg      sync.WaitGroup
}

// NewServiceManager returns a manager and the context its services should
// treat as their shutdown signal.
func NewServiceManager(logger ulogger.Logger) (*ServiceManager, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	sm := &ServiceManager{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 1),
	}
	return sm, ctx
}

// AddService registers a service under name and starts it on its own
// goroutine. It always returns nil: an error (or panic) from Start is
// reported through Wait, which then stops every registered service.
func (sm *ServiceManager) AddService(name string, service Service) error {
	sm.mu.Lock()
	sm.services = append(sm.services, entry{name: name, service: service})
	sm.mu.Unlock()

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				sm.fail(fmt.Errorf("service %s panicked: %v", name, r))
			}
		}()

		if err := service.Start(sm.ctx); err != nil {
			sm.fail(fmt.Errorf("service %s: %w", name, err))
		}
	}()

	return nil
}

func (sm *ServiceManager) fail(err error) {
	sm.logger.Errorf("servicemanager: %v", err)
	sm.errOnce.Do(func() {
		sm.errCh <- err
		sm.cancel()
	})
}

// Wait blocks until a service reports a fatal error, or the manager's
// context is otherwise cancelled (e.g. by a signal handler in main), then
// stops every registered service and returns the first failure, if any.
func (sm *ServiceManager) Wait() error {
	var firstErr error
	select {
	case firstErr = <-sm.errCh:
	case <-sm.ctx.Done():
	}

	sm.cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	sm.mu.Lock()
	services := append([]entry(nil), sm.services...)
	sm.mu.Unlock()

	for _, e := range services {
		if err := e.service.Stop(stopCtx); err != nil {
			sm.logger.Warnf("servicemanager: stop %s: %v", e.name, err)
		}
	}

	sm.wg.Wait()
	return firstErr
}

// HealthHandler aggregates every registered service's Health. liveness
// checks are shallow: they answer 200 OK without consulting any service;
// readiness checks
// call through to each service's own Health, which may consult dependent
// stores or peers.
func (sm *ServiceManager) HealthHandler(ctx context.Context, liveness bool) (int, string, error) {
	sm.mu.Lock()
	services := append([]entry(nil), sm.services...)
	sm.mu.Unlock()

	if liveness {
		return http.StatusOK, "OK", nil
	}

	worst := http.StatusOK
	details := ""
	for _, e := range services {
		status, msg, err := e.service.Health(ctx)
		if err != nil {
			status = http.StatusInternalServerError
			msg = err.Error()
		}
		if status > worst {
			worst = status
		}
		details += fmt.Sprintf("%s: %d %s\n", e.name, status, msg)
	}

	if details == "" {
		details = "OK"
	}
	if worst == 0 {
		worst = http.StatusOK
	}

	return worst, details, nil
}
