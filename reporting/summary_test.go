package reporting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitbridge/unitbridge/runner"
	"github.com/unitbridge/unitbridge/types"
)

func sampleRun() (*types.TestNode, *runner.RunResult) {
	root := types.NewGroupNode("root", "Tests.dll")
	a := types.NewCaseNode("a", "TestA")
	a.Status = types.NodeStatusPass
	b := types.NewCaseNode("b", "TestB")
	b.Status = types.NodeStatusFail
	root.AddChild(a)
	root.AddChild(b)

	result := &runner.RunResult{
		RunID:  "run-1",
		Status: types.NodeStatusFail,
		Total:  2,
		Passed: 1,
		Failed: 1,
		Failures: []runner.Failure{
			{TestID: "b", Name: "TestB", Message: "expected 2, got 3", Stack: "at TestB()"},
		},
	}
	return root, result
}

func TestFormatSummary(t *testing.T) {
	root, result := sampleRun()

	content := FormatSummary(root, result)

	assert.Contains(t, content, "Test run run-1")
	assert.Contains(t, content, "[PASS] TestA")
	assert.Contains(t, content, "[FAIL] TestB")
	assert.Contains(t, content, "expected 2, got 3")
	assert.Contains(t, content, "at TestB()")
}

func TestTextSummarySinkWritesFile(t *testing.T) {
	root, result := sampleRun()
	path := filepath.Join(t.TempDir(), "out", "summary.log")

	sink := NewTextSummarySink(path)
	require.NoError(t, sink.Write(root, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[FAIL] TestB")
}
