// Package runner implements the out-of-process test execution bridge.
//
// A RunnerClient owns the worker process that discovers and executes test
// cases; the Coordinator orchestrates one run end to end: it flattens the
// host test tree into a name filter, connects the client, relays streamed
// result events into a TestMonitor, and reconciles cancellation, worker
// crashes, and faults into a single aggregate RunResult.
package runner
