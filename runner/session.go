package runner

import (
	"context"
	"errors"
	"sync"
)

// SessionState is the observable lifecycle state of one run request.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
	SessionCanceled  SessionState = "canceled"
	SessionFailed    SessionState = "failed"
)

// ExecutionSession is the scoped resource wrapping one run's lifetime. It is
// created on entry to a run call, becomes active once the worker confirms
// discovery, and transitions to exactly one terminal state; the first
// terminal transition wins if a worker crash and a cancellation race.
type ExecutionSession struct {
	id string

	mu     sync.Mutex
	state  SessionState
	result *RunResult
	done   chan struct{}
}

// NewExecutionSession creates a session in the Created state.
func NewExecutionSession(id string) *ExecutionSession {
	return &ExecutionSession{
		id:    id,
		state: SessionCreated,
		done:  make(chan struct{}),
	}
}

// ID returns the run id the session is scoped to.
func (s *ExecutionSession) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *ExecutionSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate transitions Created to Active. It reports whether the transition
// was applied.
func (s *ExecutionSession) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionCreated {
		return false
	}
	s.state = SessionActive
	return true
}

// Complete finalizes the session with a normally-completed result.
func (s *ExecutionSession) Complete(result *RunResult) bool {
	return s.finish(SessionCompleted, result)
}

// Cancel finalizes the session with a canceled result.
func (s *ExecutionSession) Cancel(result *RunResult) bool {
	return s.finish(SessionCanceled, result)
}

// Fail finalizes the session with a failure result.
func (s *ExecutionSession) Fail(result *RunResult) bool {
	return s.finish(SessionFailed, result)
}

func (s *ExecutionSession) finish(state SessionState, result *RunResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionCompleted, SessionCanceled, SessionFailed:
		return false
	}
	s.state = state
	s.result = result
	close(s.done)
	return true
}

// Done is closed once the session reaches a terminal state.
func (s *ExecutionSession) Done() <-chan struct{} {
	return s.done
}

// Result returns the aggregate result once the session is terminal, blocking
// until then or until ctx is canceled. A session that is already terminal
// yields its result even when ctx is canceled, so the result of a canceled
// run stays readable.
func (s *ExecutionSession) Result(ctx context.Context) (*RunResult, error) {
	select {
	case <-s.done:
	default:
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, nil
}

// Close releases the session. A session still pending is finalized as failed
// so that Result never blocks forever; closing a terminal session is a no-op.
func (s *ExecutionSession) Close() {
	s.finish(SessionFailed, &RunResult{
		RunID: s.id,
		Err:   errors.New("session released before the run finished"),
	})
}
