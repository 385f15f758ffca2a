// Package types contains shared types used across the unitbridge test bridge.
package types

import "time"

// NodeStatus represents the possible states of a host test-tree node.
type NodeStatus string

const (
	NodeStatusReady   NodeStatus = "ready"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusPass    NodeStatus = "pass"
	NodeStatusFail    NodeStatus = "fail"
	NodeStatusSkip    NodeStatus = "skip"
)

// TestCaseDescriptor is the immutable identity and metadata record for one
// discovered test case. The Node field is a back-reference to the host tree
// node the case belongs to; the descriptor does not own the node.
type TestCaseDescriptor struct {
	ID   string
	Name string
	Node *TestNode
}

// DiscoveryKind tags a DiscoveryMessage variant.
type DiscoveryKind string

const (
	DiscoveryTestCase DiscoveryKind = "testCaseDiscovered"
	DiscoveryComplete DiscoveryKind = "discoveryComplete"
)

// DiscoveryMessage is one message in a discovery stream. A stream consists of
// zero or more DiscoveryTestCase messages terminated by exactly one
// DiscoveryComplete.
type DiscoveryMessage struct {
	Kind       DiscoveryKind
	Descriptor TestCaseDescriptor
}

// EventKind tags a ResultEvent variant.
type EventKind string

const (
	EventTestStarted EventKind = "started"
	EventTestPassed  EventKind = "passed"
	EventTestFailed  EventKind = "failed"
	EventTestSkipped EventKind = "skipped"
	EventRunFinished EventKind = "runFinished"
)

// ResultEvent is one event in a run's result stream. For a given TestID,
// EventTestStarted precedes exactly one terminal event; EventRunFinished is
// the last event in the stream.
type ResultEvent struct {
	Kind     EventKind
	TestID   string
	Duration time.Duration
	Message  string
	Stack    string
	Reason   string
}

// Terminal reports whether the event finishes a test case.
func (e ResultEvent) Terminal() bool {
	switch e.Kind {
	case EventTestPassed, EventTestFailed, EventTestSkipped:
		return true
	}
	return false
}

// Status returns the node status a terminal event maps to.
func (e ResultEvent) Status() NodeStatus {
	switch e.Kind {
	case EventTestPassed:
		return NodeStatusPass
	case EventTestFailed:
		return NodeStatusFail
	case EventTestSkipped:
		return NodeStatusSkip
	case EventTestStarted:
		return NodeStatusRunning
	}
	return NodeStatusReady
}

// RunRequest describes one run handed to the worker. Immutable; constructed
// once per run.
type RunRequest struct {
	AssemblyPath      string
	RuntimeVersion    string
	ConfigPath        string
	SupportAssemblies []string
	CrashLogPath      string

	// Filter is the ordered set of test-case ids the run is restricted to.
	// An empty filter means "run all discovered cases"; callers selecting
	// specific cases must supply at least one id.
	Filter []string
}
