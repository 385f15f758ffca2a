package bridge

import (
	"github.com/unitbridge/unitbridge/metrics"
	"github.com/unitbridge/unitbridge/runner"
)

// MetricsReporter is responsible for reporting metrics from test results.
type MetricsReporter interface {
	ReportResults(assembly string, result *runner.RunResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the test results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(assembly string, result *runner.RunResult) {
	metrics.RecordRun(
		assembly,
		result.RunID,
		string(result.Status),
		result.Total,
		result.Passed,
		result.Failed,
		result.Duration,
	)
	if result.Err != nil && runner.IsWorkerCrashed(result.Err) {
		metrics.RecordWorkerCrash(assembly)
	}
}
