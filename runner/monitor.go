package runner

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/unitbridge/unitbridge/metrics"
	"github.com/unitbridge/unitbridge/types"
)

// EventLogger receives per-test progress notifications. Implementations must
// tolerate being called from the run's event-delivery goroutine.
type EventLogger interface {
	TestStarted(name string)
	TestFinished(name string, status types.NodeStatus, duration time.Duration)
	RunFinished()
}

// ResultSink consumes low-level result events.
type ResultSink interface {
	OnEvent(ev types.ResultEvent)
}

var _ ResultSink = (*TestMonitor)(nil)

// TestMonitor maps result events from the runner client onto host test-tree
// nodes and accumulates the aggregate result. A monitor is scoped to exactly
// one run and discarded after; cross-run state is never shared.
type TestMonitor struct {
	log      log.Logger
	console  EventLogger
	assembly string
	runID    string

	mu       sync.Mutex
	nodes    map[string]*types.TestNode
	started  map[string]bool
	passed   int
	failed   int
	skipped  int
	duration time.Duration
	failures []Failure
	canceled bool
	finished bool
}

// NewTestMonitor creates a monitor for one run. The console sink is optional;
// assembly and runID label the per-test metrics the monitor records.
func NewTestMonitor(logger log.Logger, console EventLogger, assembly, runID string) *TestMonitor {
	if logger == nil {
		logger = log.Root()
	}
	return &TestMonitor{
		log:      logger,
		console:  console,
		assembly: assembly,
		runID:    runID,
		nodes:    make(map[string]*types.TestNode),
		started:  make(map[string]bool),
	}
}

// Register makes the monitor aware of test cases so their events can be
// applied to the owning nodes. Already-registered ids are left untouched.
func (m *TestMonitor) Register(cases []types.TestCaseDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cases {
		if _, exists := m.nodes[c.ID]; exists {
			continue
		}
		m.nodes[c.ID] = c.Node
	}
}

// OnEvent applies one result event. Events for unrecognized ids and terminal
// events without a preceding start are logged and ignored; they never fault
// the run.
func (m *TestMonitor) OnEvent(ev types.ResultEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Kind == types.EventRunFinished {
		m.finished = true
		if m.console != nil {
			m.console.RunFinished()
		}
		return
	}

	node, known := m.nodes[ev.TestID]
	if !known || node == nil {
		m.log.Warn("Ignoring event for unknown test case", "test_id", ev.TestID, "event", ev.Kind)
		return
	}

	switch {
	case ev.Kind == types.EventTestStarted:
		m.started[ev.TestID] = true
		node.Status = types.NodeStatusRunning
		if m.console != nil {
			m.console.TestStarted(node.Name)
		}
	case ev.Terminal():
		if !m.started[ev.TestID] {
			m.log.Warn("Ignoring terminal event without a start", "test_id", ev.TestID, "event", ev.Kind)
			return
		}
		m.applyTerminal(node, ev)
	default:
		m.log.Warn("Ignoring unexpected event", "test_id", ev.TestID, "event", ev.Kind)
	}
}

func (m *TestMonitor) applyTerminal(node *types.TestNode, ev types.ResultEvent) {
	node.Status = ev.Status()
	m.duration += ev.Duration

	switch ev.Kind {
	case types.EventTestPassed:
		m.passed++
	case types.EventTestFailed:
		m.failed++
		m.failures = append(m.failures, Failure{
			TestID:  ev.TestID,
			Name:    node.Name,
			Message: ev.Message,
			Stack:   ev.Stack,
		})
	case types.EventTestSkipped:
		m.skipped++
		m.log.Debug("Test skipped", "test", node.Name, "reason", ev.Reason)
	}
	metrics.RecordTest(m.assembly, m.runID, node.Name, node.Status)
	if m.console != nil {
		m.console.TestFinished(node.Name, node.Status, ev.Duration)
	}
}

// MarkCanceled flags the run as canceled. It is set at most once, by the
// cancellation path, before the monitor is asked for a final result; it
// distinguishes "no result because canceled" from "no result because
// crashed".
func (m *TestMonitor) MarkCanceled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canceled {
		return
	}
	m.canceled = true
	m.log.Debug("Monitor marked canceled")
}

// Canceled reports whether the run was canceled.
func (m *TestMonitor) Canceled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canceled
}

// Finished reports whether the worker signaled the end of the event stream.
func (m *TestMonitor) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// Result snapshots the accumulated aggregate for the run.
func (m *TestMonitor) Result() *RunResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make([]Failure, len(m.failures))
	copy(failures, m.failures)

	return &RunResult{
		RunID:    m.runID,
		Status:   determineStatus(m.passed, m.failed, m.skipped),
		Canceled: m.canceled,
		Total:    len(m.nodes),
		Passed:   m.passed,
		Failed:   m.failed,
		Skipped:  m.skipped,
		Failures: failures,
		Duration: m.duration,
	}
}
