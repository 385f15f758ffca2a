package bridge

import (
	"fmt"
	"time"

	"github.com/unitbridge/unitbridge/types"
)

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a string representing the test result
func getResultString(status types.NodeStatus) string {
	switch status {
	case types.NodeStatusPass:
		return "✓ pass"
	case types.NodeStatusSkip:
		return "- skip"
	case types.NodeStatusFail:
		return "✗ fail"
	default:
		return string(status)
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
