package bridge

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/unitbridge/unitbridge/runner"
	"github.com/unitbridge/unitbridge/types"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(root *types.TestNode, result *runner.RunResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the test results.
func (f *ConsoleResultFormatter) FormatResults(root *types.TestNode, result *runner.RunResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "Name", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	failureByID := make(map[string]runner.Failure, len(result.Failures))
	for _, failure := range result.Failures {
		failureByID[failure.TestID] = failure
	}

	f.appendRows(t, root, 0, failureByID)

	// Update the table style setting based on result status
	if result.Canceled {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else if result.Status == types.NodeStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Status == types.NodeStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		result.Passed,
		result.Failed,
		result.Skipped,
		getResultString(result.Status),
		"",
	})

	t.Render()

	fmt.Println(result.String())

	return nil
}

// appendRows walks the tree depth-first in pre-order, emitting one row per
// node. Groups show their subtree counts, leaves show their own status.
func (f *ConsoleResultFormatter) appendRows(t table.Writer, node *types.TestNode, depth int, failures map[string]runner.Failure) {
	indent := strings.Repeat("    ", depth)
	if depth > 0 {
		indent = strings.Repeat("    ", depth-1) + "└── "
	}

	if node.IsLeaf() {
		failure, failed := failures[node.Case.ID]
		errorMsg := ""
		if failed {
			errorMsg = firstLine(failure.Message)
		}
		t.AppendRow(table.Row{
			"Test",
			indent + node.Name,
			boolToInt(node.Status == types.NodeStatusPass),
			boolToInt(node.Status == types.NodeStatusFail),
			boolToInt(node.Status == types.NodeStatusSkip),
			getResultString(node.Status),
			errorMsg,
		})
		return
	}

	passed, failed, skipped := countStatuses(node)
	status := types.NodeStatusPass
	if failed > 0 {
		status = types.NodeStatusFail
	} else if passed == 0 && skipped > 0 {
		status = types.NodeStatusSkip
	}
	t.AppendRow(table.Row{
		"Group",
		indent + node.Name,
		passed,
		failed,
		skipped,
		getResultString(status),
		"",
	})

	for _, child := range node.Children {
		f.appendRows(t, child, depth+1, failures)
	}
	if depth == 0 {
		t.AppendSeparator()
	}
}

// countStatuses tallies terminal leaf statuses under a node.
func countStatuses(node *types.TestNode) (passed, failed, skipped int) {
	node.Walk(func(n *types.TestNode) bool {
		if !n.IsLeaf() {
			return true
		}
		switch n.Status {
		case types.NodeStatusPass:
			passed++
		case types.NodeStatusFail:
			failed++
		case types.NodeStatusSkip:
			skipped++
		}
		return true
	})
	return passed, failed, skipped
}

// firstLine trims an error message down to its first line for table display.
func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	if len(s) > 80 {
		return s[:70] + "..."
	}
	return s
}
