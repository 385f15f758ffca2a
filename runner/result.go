package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/unitbridge/unitbridge/types"
)

// Failure records one failed test case. All failures are kept; no truncation
// happens at this layer.
type Failure struct {
	TestID  string
	Name    string
	Message string
	Stack   string
}

// RunResult is the aggregate outcome of one run returned to the caller.
type RunResult struct {
	RunID    string
	Status   types.NodeStatus
	Canceled bool

	Total   int
	Passed  int
	Failed  int
	Skipped int

	Failures []Failure

	// Duration is the sum of individual test durations; WallClockTime is the
	// elapsed time of the whole run.
	Duration      time.Duration
	WallClockTime time.Duration

	// Err carries a run-level fault (connection failure, worker crash, or an
	// unexpected error from the run call). Test failures never appear here.
	Err error

	// CrashLogPath is where the worker was told to write crash diagnostics.
	// The file itself is deleted when the run returns; the path is kept for
	// reference in logs and error messages.
	CrashLogPath string
}

// OK reports whether the run completed with every test passing or skipping.
func (r *RunResult) OK() bool {
	return !r.Canceled && r.Err == nil && r.Failed == 0
}

// String renders a one-line summary of the run.
func (r *RunResult) String() string {
	if r.Canceled {
		return fmt.Sprintf("Canceled after %d of %d tests (%d passed, %d failed, %d skipped)",
			r.finished(), r.Total, r.Passed, r.Failed, r.Skipped)
	}
	if r.Err != nil {
		return fmt.Sprintf("Run failed: %v", r.Err)
	}
	return fmt.Sprintf("%d tests: %d passed, %d failed, %d skipped (%.1fs)",
		r.Total, r.Passed, r.Failed, r.Skipped, r.Duration.Seconds())
}

// FailureSummary renders every recorded failure, one block per test.
func (r *RunResult) FailureSummary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "--- %s\n", f.Name)
		if f.Message != "" {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(f.Message, "\n", "\n    "))
		}
		if f.Stack != "" {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(f.Stack, "\n", "\n    "))
		}
	}
	return b.String()
}

func (r *RunResult) finished() int {
	return r.Passed + r.Failed + r.Skipped
}

// determineStatus derives the aggregate status. Failures win over skips; a
// run where everything was skipped reports skip.
func determineStatus(passed, failed, skipped int) types.NodeStatus {
	switch {
	case failed > 0:
		return types.NodeStatusFail
	case passed > 0:
		return types.NodeStatusPass
	case skipped > 0:
		return types.NodeStatusSkip
	}
	return types.NodeStatusSkip
}
