// Package bridge wires the unitbridge service together: it loads worker
// launch profiles, builds the run coordinator, and drives one-shot or
// periodic test runs against an external xUnit worker process.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/unitbridge/unitbridge/logging"
	"github.com/unitbridge/unitbridge/registry"
	"github.com/unitbridge/unitbridge/reporting"
	"github.com/unitbridge/unitbridge/runner"
	"github.com/unitbridge/unitbridge/types"
)

// bridge runs xUnit test assemblies through an out-of-process worker.
type bridge struct {
	ctx         context.Context
	config      *Config
	version     string
	registry    *registry.Registry
	profile     registry.Profile
	coordinator *runner.Coordinator
	scheduler   TestScheduler
	formatter   ResultFormatter
	reporter    MetricsReporter
	summary     *reporting.TextSummarySink
	filters     RegexList

	root   *types.TestNode
	result *runner.RunResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*bridge, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating bridge with config",
		"assembly", config.AssemblyPath,
		"workerConfig", config.WorkerConfig,
		"profile", config.Profile,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:               config.Log,
		ProfileConfigFile: config.WorkerConfig,
		DefaultTimeout:    runner.DefaultConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	profile, err := reg.Profile(config.Profile)
	if err != nil {
		return nil, err
	}

	filters, err := NewRegexList(config.Filters)
	if err != nil {
		return nil, fmt.Errorf("invalid test filter: %w", err)
	}

	coordinator, err := runner.NewCoordinator(runner.Config{
		Log:         config.Log,
		NewClient:   clientFactory(config.Log, profile),
		Console:     logging.NewConsolePrinter(os.Stdout),
		CrashLogDir: config.CrashLogDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	b := &bridge{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		profile:          profile,
		coordinator:      coordinator,
		scheduler:        NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(),
		filters:          filters,
		root:             newAssemblyNode(config.AssemblyPath),
		shutdownCallback: shutdownCallback,
	}
	if config.SummaryFile != "" {
		b.summary = reporting.NewTextSummarySink(config.SummaryFile)
	}
	config.Log.Info("bridge.New: created registry and coordinator", "profile", profile.ID)

	return b, nil
}

// clientFactory builds one fresh worker client per run from a launch profile.
func clientFactory(logger log.Logger, profile registry.Profile) func() (runner.RunnerClient, error) {
	env := make([]string, 0, len(profile.Env))
	for k, v := range profile.Env {
		env = append(env, k+"="+v)
	}
	var connectTimeout time.Duration
	if profile.ConnectTimeout != nil {
		connectTimeout = time.Duration(*profile.ConnectTimeout)
	}
	return func() (runner.RunnerClient, error) {
		return runner.NewProcessClient(runner.ProcessClientConfig{
			Log:            logger,
			Binary:         profile.Binary,
			Args:           profile.Args,
			Env:            env,
			ConnectTimeout: connectTimeout,
		})
	}
}

func newAssemblyNode(assemblyPath string) *types.TestNode {
	name := filepath.Base(assemblyPath)
	return types.NewGroupNode(assemblyPath, name)
}

// Start begins executing test runs, once or periodically depending on the
// configuration.
func (b *bridge) Start(ctx context.Context) error {
	b.ctx = ctx

	if b.config.RunOnce {
		b.config.Log.Info("Starting unitbridge in run-once mode")
	} else {
		b.config.Log.Info("Starting unitbridge in continuous mode", "interval", b.config.RunInterval)
	}

	b.scheduler.RegisterCallback(b.runTests)
	if err := b.scheduler.Start(ctx); err != nil {
		b.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	if b.config.RunOnce {
		b.config.Log.Info("Tests completed, exiting (run-once mode)")

		if b.result != nil && b.result.Canceled {
			return NewRuntimeError(errors.New("test run canceled"))
		}
		// Check if any tests failed and return appropriate exit code
		if b.result != nil && b.result.Status == types.NodeStatusFail {
			b.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(b.result.FailureSummary())
		}

		// Only need to call this when we're in run-once mode and all tests passed
		go func() {
			b.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	b.config.Log.Debug("unitbridge started successfully")
	return nil
}

// runTests runs the assembly once and processes the results.
func (b *bridge) runTests() error {
	b.config.Log.Info("Running tests...", "assembly", b.config.AssemblyPath)

	req := types.RunRequest{
		AssemblyPath:      b.config.AssemblyPath,
		RuntimeVersion:    b.profile.RuntimeVersion,
		ConfigPath:        b.config.RunSettings,
		SupportAssemblies: append(append([]string(nil), b.profile.SupportAssemblies...), b.config.SupportAssemblies...),
	}

	result, err := b.executeRun(req)
	if err != nil {
		// This is a runtime error (not a test failure)
		b.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}
	b.result = result

	if err := b.formatter.FormatResults(b.root, result); err != nil {
		b.config.Log.Error("Failed to format results", "error", err)
	}
	b.reporter.ReportResults(b.config.AssemblyPath, result)
	if b.summary != nil {
		if err := b.summary.Write(b.root, result); err != nil {
			b.config.Log.Error("Failed to write summary file", "error", err)
		}
	}

	b.config.Log.Info("Test run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// executeRun performs one run. When name filters are configured the assembly
// is first discovered so the filters can be matched against display names;
// otherwise the whole assembly runs in a single worker session.
func (b *bridge) executeRun(req types.RunRequest) (*runner.RunResult, error) {
	if !b.filters.IsDefined() {
		return b.coordinator.RunAssemblySuite(b.ctx, b.root, req)
	}

	cases, err := b.coordinator.Discover(b.ctx, b.root, req)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	selected := FilterCases(cases, b.filters)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no test cases match filter %s", b.filters)
	}
	b.config.Log.Info("Filtered test cases", "discovered", len(cases), "selected", len(selected))
	return b.coordinator.RunTestCases(b.ctx, b.root, selected, req)
}

// Stop stops the unitbridge service.
func (b *bridge) Stop(ctx context.Context) error {
	b.config.Log.Info("Stopping unitbridge")

	if b.scheduler.Stopped() {
		b.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	if err := b.scheduler.Stop(); err != nil {
		return err
	}

	b.config.Log.Info("unitbridge stopped successfully")
	return nil
}

// Stopped returns true if the unitbridge service is stopped.
func (b *bridge) Stopped() bool {
	return b.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (b *bridge) WaitForShutdown(ctx context.Context) error {
	return b.scheduler.WaitForShutdown(ctx)
}
