package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewExecutionSession("run-1")
	assert.Equal(t, SessionCreated, s.State())

	assert.True(t, s.Activate())
	assert.Equal(t, SessionActive, s.State())

	assert.True(t, s.Complete(&RunResult{RunID: "run-1"}))
	assert.Equal(t, SessionCompleted, s.State())
}

func TestSessionActivateOnlyFromCreated(t *testing.T) {
	s := NewExecutionSession("run-1")
	require.True(t, s.Activate())
	assert.False(t, s.Activate())

	s.Complete(&RunResult{})
	assert.False(t, s.Activate())
}

func TestSessionFirstTerminalTransitionWins(t *testing.T) {
	s := NewExecutionSession("run-1")
	s.Activate()

	canceled := &RunResult{RunID: "run-1", Canceled: true}
	failed := &RunResult{RunID: "run-1"}

	assert.True(t, s.Cancel(canceled))
	assert.False(t, s.Fail(failed))
	assert.False(t, s.Complete(failed))
	assert.Equal(t, SessionCanceled, s.State())

	result, err := s.Result(context.Background())
	require.NoError(t, err)
	assert.Same(t, canceled, result)
}

func TestSessionResultBlocksUntilTerminal(t *testing.T) {
	s := NewExecutionSession("run-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Result(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	expected := &RunResult{RunID: "run-1"}
	s.Complete(expected)

	result, err := s.Result(context.Background())
	require.NoError(t, err)
	assert.Same(t, expected, result)
}

func TestSessionResultReadableAfterContextCancel(t *testing.T) {
	// A canceled run reads its result back with the same canceled context;
	// the terminal state must win over the context error.
	s := NewExecutionSession("run-1")
	expected := &RunResult{RunID: "run-1", Canceled: true}
	s.Cancel(expected)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Result(ctx)
	require.NoError(t, err)
	assert.Same(t, expected, result)
}

func TestSessionCloseFinalizesPendingSession(t *testing.T) {
	s := NewExecutionSession("run-1")
	s.Activate()

	s.Close()
	assert.Equal(t, SessionFailed, s.State())

	result, err := s.Result(context.Background())
	require.NoError(t, err)
	require.Error(t, result.Err)
}

func TestSessionCloseAfterTerminalIsNoOp(t *testing.T) {
	s := NewExecutionSession("run-1")
	expected := &RunResult{RunID: "run-1"}
	s.Complete(expected)

	s.Close()
	assert.Equal(t, SessionCompleted, s.State())

	result, err := s.Result(context.Background())
	require.NoError(t, err)
	assert.Same(t, expected, result)
}

func TestSessionDoneChannel(t *testing.T) {
	s := NewExecutionSession("run-1")

	select {
	case <-s.Done():
		t.Fatal("session done before any terminal transition")
	default:
	}

	s.Fail(&RunResult{})
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not done after terminal transition")
	}
}
