package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// TestScheduler decides when the assembly suite is executed: exactly once, or
// repeatedly on a fixed interval until stopped.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// DefaultTestScheduler runs the registered callback synchronously on Start
// and, in continuous mode, re-runs it every interval from a background
// goroutine. A failed scheduled run is logged and does not stop the loop.
type DefaultTestScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	runSuite func() error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultTestScheduler creates a scheduler. An interval of zero only makes
// sense together with runOnce.
func NewDefaultTestScheduler(interval time.Duration, runOnce bool, logger log.Logger) *DefaultTestScheduler {
	return &DefaultTestScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback sets the function that executes one full run of the suite.
func (s *DefaultTestScheduler) RegisterCallback(runSuite func() error) {
	s.runSuite = runSuite
}

// Start executes the first run synchronously and returns its error. In
// continuous mode it then launches the interval loop; later run errors are
// logged, not returned.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.runSuite == nil {
		return errors.New("no run callback registered")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Executing single test run")
		return s.runSuite()
	}

	s.logger.Info("Scheduling recurring test runs", "interval", s.interval)
	if err := s.runSuite(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

func (s *DefaultTestScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.running.Load() {
				return
			}
			s.logger.Info("Starting scheduled test run")
			if err := s.runSuite(); err != nil {
				s.logger.Error("Scheduled test run failed", "error", err)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			s.running.Store(false)
			return
		}
	}
}

// Stop halts scheduling. Runs already in flight finish; Stop is idempotent
// and safe to call before Start.
func (s *DefaultTestScheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.done)
	return nil
}

// Stopped reports whether the scheduler is no longer scheduling runs.
func (s *DefaultTestScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the interval loop has exited or ctx is done.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}
