package runner

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitbridge/unitbridge/types"
)

func newMonitorWithCases(ids ...string) (*TestMonitor, map[string]*types.TestNode) {
	root := types.NewGroupNode("root", "root")
	for _, id := range ids {
		root.AddChild(types.NewCaseNode(id, "Test"+id))
	}
	m := NewTestMonitor(nil, nil, "Tests.dll", "run-1")
	m.Register(types.Flatten(root))
	return m, types.IndexByID(root)
}

func startedEvent(id string) types.ResultEvent {
	return types.ResultEvent{Kind: types.EventTestStarted, TestID: id}
}

func passedEvent(id string, d time.Duration) types.ResultEvent {
	return types.ResultEvent{Kind: types.EventTestPassed, TestID: id, Duration: d}
}

func failedEvent(id, message, stack string) types.ResultEvent {
	return types.ResultEvent{Kind: types.EventTestFailed, TestID: id, Message: message, Stack: stack}
}

func TestMonitorMarksNodeRunningOnStart(t *testing.T) {
	m, nodes := newMonitorWithCases("a")

	m.OnEvent(startedEvent("a"))

	assert.Equal(t, types.NodeStatusRunning, nodes["a"].Status)
}

func TestMonitorAppliesTerminalEvents(t *testing.T) {
	m, nodes := newMonitorWithCases("a", "b", "c")

	m.OnEvent(startedEvent("a"))
	m.OnEvent(passedEvent("a", 120*time.Millisecond))
	m.OnEvent(startedEvent("b"))
	m.OnEvent(failedEvent("b", "expected 2, got 3", "at TestB()"))
	m.OnEvent(startedEvent("c"))
	m.OnEvent(types.ResultEvent{Kind: types.EventTestSkipped, TestID: "c", Reason: "not supported"})
	m.OnEvent(types.ResultEvent{Kind: types.EventRunFinished})

	assert.Equal(t, types.NodeStatusPass, nodes["a"].Status)
	assert.Equal(t, types.NodeStatusFail, nodes["b"].Status)
	assert.Equal(t, types.NodeStatusSkip, nodes["c"].Status)
	assert.True(t, m.Finished())

	result := m.Result()
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, types.NodeStatusFail, result.Status)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b", result.Failures[0].TestID)
	assert.Equal(t, "expected 2, got 3", result.Failures[0].Message)
	assert.Equal(t, "at TestB()", result.Failures[0].Stack)
}

func TestMonitorKeepsAllFailures(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	m, _ := newMonitorWithCases(ids...)

	for _, id := range ids {
		m.OnEvent(startedEvent(id))
		m.OnEvent(failedEvent(id, "boom "+id, ""))
	}

	result := m.Result()
	require.Len(t, result.Failures, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, result.Failures[i].TestID)
	}
}

func TestMonitorIgnoresUnknownTestID(t *testing.T) {
	m, nodes := newMonitorWithCases("a")

	m.OnEvent(startedEvent("phantom"))
	m.OnEvent(passedEvent("phantom", time.Second))

	assert.Equal(t, types.NodeStatusReady, nodes["a"].Status)
	result := m.Result()
	assert.Zero(t, result.Passed)
}

func TestMonitorIgnoresTerminalWithoutStart(t *testing.T) {
	m, nodes := newMonitorWithCases("a")

	m.OnEvent(passedEvent("a", time.Second))

	assert.Equal(t, types.NodeStatusReady, nodes["a"].Status)
	assert.Zero(t, m.Result().Passed)
}

func TestMonitorCanceledFlag(t *testing.T) {
	m, _ := newMonitorWithCases("a")

	assert.False(t, m.Canceled())
	m.MarkCanceled()
	m.MarkCanceled() // second call is a no-op
	assert.True(t, m.Canceled())
	assert.True(t, m.Result().Canceled)
}

func TestMonitorRegisterSkipsExistingIDs(t *testing.T) {
	m, nodes := newMonitorWithCases("a")

	replacement := types.NewCaseNode("a", "Replacement")
	m.Register([]types.TestCaseDescriptor{*replacement.Case})

	m.OnEvent(startedEvent("a"))
	assert.Equal(t, types.NodeStatusRunning, nodes["a"].Status)
	assert.Equal(t, types.NodeStatusReady, replacement.Status)
}

func TestMonitorAllSkippedAggregatesToSkip(t *testing.T) {
	m, _ := newMonitorWithCases("a", "b")

	for _, id := range []string{"a", "b"} {
		m.OnEvent(startedEvent(id))
		m.OnEvent(types.ResultEvent{Kind: types.EventTestSkipped, TestID: id})
	}

	assert.Equal(t, types.NodeStatusSkip, m.Result().Status)
}

// testsTotalCount reads the unitbridge_tests_total counter for one test case
// from the default prometheus registry.
func testsTotalCount(t *testing.T, runID, name, result string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "unitbridge_tests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["run_id"] == runID && labels["name"] == name && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMonitorRecordsPerTestMetrics(t *testing.T) {
	root := types.NewGroupNode("root", "root")
	root.AddChild(types.NewCaseNode("a", "TestA"))
	root.AddChild(types.NewCaseNode("b", "TestB"))
	m := NewTestMonitor(nil, nil, "Tests.dll", "run-metrics-1")
	m.Register(types.Flatten(root))

	m.OnEvent(startedEvent("a"))
	m.OnEvent(passedEvent("a", time.Millisecond))
	m.OnEvent(startedEvent("b"))
	m.OnEvent(failedEvent("b", "boom", ""))

	assert.Equal(t, 1.0, testsTotalCount(t, "run-metrics-1", "TestA", "pass"))
	assert.Equal(t, 1.0, testsTotalCount(t, "run-metrics-1", "TestB", "fail"))
}
