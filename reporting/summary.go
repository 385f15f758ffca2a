// Package reporting writes run artifacts for consumption outside the console,
// such as plain-text summaries of a finished test run.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/unitbridge/unitbridge/runner"
	"github.com/unitbridge/unitbridge/types"
)

// TextSummarySink writes a plain-text summary of a run to a file.
type TextSummarySink struct {
	path string
}

// NewTextSummarySink creates a sink writing to the given file path.
func NewTextSummarySink(path string) *TextSummarySink {
	return &TextSummarySink{path: path}
}

// Write renders the tree and aggregate result and writes them to the sink's
// file, creating parent directories as needed.
func (s *TextSummarySink) Write(root *types.TestNode, result *runner.RunResult) error {
	content := FormatSummary(root, result)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// FormatSummary renders a run as indented plain text: one line per tree node,
// followed by the aggregate line and any failure details.
func FormatSummary(root *types.TestNode, result *runner.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Test run %s\n", result.RunID)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", len("Test run ")+len(result.RunID)))

	writeNode(&b, root, 0)

	fmt.Fprintf(&b, "\n%s\n", result.String())

	if len(result.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, failure := range result.Failures {
			fmt.Fprintf(&b, "\n--- %s\n", failure.Name)
			if failure.Message != "" {
				fmt.Fprintf(&b, "%s\n", failure.Message)
			}
			if failure.Stack != "" {
				fmt.Fprintf(&b, "%s\n", failure.Stack)
			}
		}
	}

	return b.String()
}

func writeNode(b *strings.Builder, node *types.TestNode, depth int) {
	indent := strings.Repeat("  ", depth)
	if node.IsLeaf() {
		fmt.Fprintf(b, "%s[%s] %s\n", indent, statusMark(node.Status), node.Name)
		return
	}
	fmt.Fprintf(b, "%s%s\n", indent, node.Name)
	for _, child := range node.Children {
		writeNode(b, child, depth+1)
	}
}

func statusMark(status types.NodeStatus) string {
	switch status {
	case types.NodeStatusPass:
		return "PASS"
	case types.NodeStatusFail:
		return "FAIL"
	case types.NodeStatusSkip:
		return "SKIP"
	default:
		return strings.ToUpper(string(status))
	}
}
