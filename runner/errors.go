package runner

import (
	"errors"
	"fmt"
)

// ConnectionError indicates the worker process could not be started or the
// handshake failed. It is fatal to the run.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("worker connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError checks if the error is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return err != nil && errors.As(err, &connErr)
}

// WorkerCrashedError indicates the worker process exited before reporting the
// run as finished. The crash log is the durable artifact for postmortem.
type WorkerCrashedError struct {
	CrashLogPath string
	StderrTail   string
	Err          error
}

func (e *WorkerCrashedError) Error() string {
	msg := fmt.Sprintf("worker crashed before the run finished (crash log: %s)", e.CrashLogPath)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.StderrTail != "" {
		msg = fmt.Sprintf("%s\nstderr: %s", msg, e.StderrTail)
	}
	return msg
}

func (e *WorkerCrashedError) Unwrap() error {
	return e.Err
}

// IsWorkerCrashed checks if the error is or wraps a WorkerCrashedError.
func IsWorkerCrashed(err error) bool {
	var crashErr *WorkerCrashedError
	return err != nil && errors.As(err, &crashErr)
}

// CanceledError indicates the run was actively terminated by the coordinator.
type CanceledError struct{}

func (e *CanceledError) Error() string {
	return "run canceled"
}

// IsCanceled checks if the error is or wraps a CanceledError.
func IsCanceled(err error) bool {
	var cancelErr *CanceledError
	return err != nil && errors.As(err, &cancelErr)
}

// FaultedError wraps an unexpected error surfaced from the run call itself,
// as opposed to a test failure, which is reported as a result event.
type FaultedError struct {
	Err error
}

func (e *FaultedError) Error() string {
	return fmt.Sprintf("run faulted: %v", e.Err)
}

func (e *FaultedError) Unwrap() error {
	return e.Err
}

// IsFaulted checks if the error is or wraps a FaultedError.
func IsFaulted(err error) bool {
	var faultErr *FaultedError
	return err != nil && errors.As(err, &faultErr)
}
