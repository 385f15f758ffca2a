package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/unitbridge/unitbridge/logging"
	"github.com/unitbridge/unitbridge/types"
)

// Config configures a Coordinator.
type Config struct {
	Log log.Logger

	// NewClient builds the runner client for one run. A fresh client is
	// acquired per run and disposed when the run ends; handles are never
	// reused.
	NewClient func() (RunnerClient, error)

	// Console optionally receives per-test progress events.
	Console EventLogger

	// CrashLogDir is where per-run crash logs are created; empty means the
	// system temp directory.
	CrashLogDir string

	// BeforeRun and AfterRun are optional hooks bracketing worker execution.
	BeforeRun func() error
	AfterRun  func()

	Tracer trace.Tracer
}

// Coordinator orchestrates runs against the external worker: it builds the
// flattened id filter, connects the client, registers cancellation before
// starting the run, and reconciles the outcome into an aggregate RunResult.
type Coordinator struct {
	cfg    Config
	log    log.Logger
	tracer trace.Tracer
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.NewClient == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("unitbridge/runner")
	}
	return &Coordinator{
		cfg:    cfg,
		log:    cfg.Log,
		tracer: cfg.Tracer,
	}, nil
}

// Discover launches a worker to enumerate the assembly's test cases without
// executing them, and merges the discovered cases into the host tree under
// root. It returns the descriptors now present in the tree, in arrival order.
func (c *Coordinator) Discover(ctx context.Context, root *types.TestNode, req types.RunRequest) ([]types.TestCaseDescriptor, error) {
	if root == nil {
		return nil, fmt.Errorf("assembly node is required")
	}

	logger := c.log.New("assembly", req.AssemblyPath)
	client, err := c.cfg.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire runner client: %w", err)
	}
	defer client.Dispose()

	if err := client.Connect(ctx, req.RuntimeVersion); err != nil {
		return nil, err
	}
	discovered, err := client.Discover(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.Debug("Discovery finished", "cases", len(discovered))
	return attachDiscovered(root, discovered), nil
}

// RunTestCase runs a single test case.
func (c *Coordinator) RunTestCase(ctx context.Context, desc types.TestCaseDescriptor, req types.RunRequest) (*RunResult, error) {
	if desc.Node == nil {
		return nil, fmt.Errorf("descriptor %q has no tree node", desc.ID)
	}
	return c.run(ctx, desc.Node, []types.TestCaseDescriptor{desc}, false, req)
}

// RunTestCases runs an arbitrary selection of test cases from the tree rooted
// at root, preserving the given order.
func (c *Coordinator) RunTestCases(ctx context.Context, root *types.TestNode, cases []types.TestCaseDescriptor, req types.RunRequest) (*RunResult, error) {
	if root == nil {
		return nil, fmt.Errorf("assembly node is required")
	}
	for _, desc := range cases {
		if desc.Node == nil {
			return nil, fmt.Errorf("descriptor %q has no tree node", desc.ID)
		}
	}
	return c.run(ctx, root, cases, false, req)
}

// RunTestSuite runs every test case under the given tree node, in depth-first
// pre-order.
func (c *Coordinator) RunTestSuite(ctx context.Context, node *types.TestNode, req types.RunRequest) (*RunResult, error) {
	if node == nil {
		return nil, fmt.Errorf("suite node is required")
	}
	return c.run(ctx, node, types.Flatten(node), false, req)
}

// RunAssemblySuite runs all test cases the worker discovers in the assembly.
// Cases already present under root keep their nodes; newly discovered ones
// are attached as direct children.
func (c *Coordinator) RunAssemblySuite(ctx context.Context, root *types.TestNode, req types.RunRequest) (*RunResult, error) {
	if root == nil {
		return nil, fmt.Errorf("assembly node is required")
	}
	return c.run(ctx, root, types.Flatten(root), true, req)
}

func (c *Coordinator) run(ctx context.Context, root *types.TestNode, cases []types.TestCaseDescriptor, runAll bool, req types.RunRequest) (result *RunResult, err error) {
	if !runAll && len(cases) == 0 {
		return nil, fmt.Errorf("refusing to run with an empty filter: select at least one test case or run the whole assembly")
	}

	ctx, span := c.tracer.Start(ctx, "unitbridge.run")
	defer span.End()

	runID := uuid.New().String()
	logger := c.log.New("run_id", runID)
	started := time.Now()

	crashLog, err := logging.NewCrashLog(c.cfg.CrashLogDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare crash log: %w", err)
	}
	req.CrashLogPath = crashLog.Path()
	if runAll {
		req.Filter = nil
	} else {
		req.Filter = descriptorIDs(cases)
	}

	session := NewExecutionSession(runID)
	monitor := NewTestMonitor(logger, c.cfg.Console, req.AssemblyPath, runID)
	monitor.Register(cases)

	client, err := c.cfg.NewClient()
	if err != nil {
		crashLog.Remove()
		return nil, fmt.Errorf("failed to acquire runner client: %w", err)
	}

	// The cancellation action is idempotent: marking the monitor canceled
	// first guarantees reconciliation classifies the torn-down run as
	// canceled rather than crashed.
	cancel := &cancelRegistration{action: func() {
		logger.Info("Cancellation requested; terminating worker")
		monitor.MarkCanceled()
		client.Dispose()
	}}
	unregister := cancel.watch(ctx)

	defer func() {
		// The client is released before any shared output sink the session
		// writes to, so in-flight writes never land on a closed sink.
		client.Dispose()
		unregister()
		crashLog.Remove()
		session.Close()
	}()

	logger.Info("Starting test run",
		"assembly", req.AssemblyPath,
		"cases", len(cases),
		"run_all", runAll)

	runErr := client.Connect(ctx, req.RuntimeVersion)
	if runErr == nil {
		opts := RunOptions{
			Discovered: func(discovered []types.TestCaseDescriptor) {
				attached := attachDiscovered(root, discovered)
				monitor.Register(attached)
				if session.Activate() {
					logger.Debug("Discovery complete", "cases", len(discovered))
				}
			},
			Before: c.cfg.BeforeRun,
			After:  c.cfg.AfterRun,
		}
		runErr = client.Run(ctx, req, monitor, opts)
	}

	// The client observes ctx cancellation itself and can return before the
	// watcher goroutine fires the cancel action; fold that path into the same
	// action so classification never depends on goroutine scheduling.
	if IsCanceled(runErr) || ctx.Err() != nil {
		cancel.Cancel()
	}

	c.reconcile(logger, session, monitor, root, crashLog, runErr)

	// Reconciliation left the session terminal; read the result back from it
	// so the session is the single source of the run's outcome.
	result, err = session.Result(ctx)
	if err != nil {
		return nil, err
	}
	result.WallClockTime = time.Since(started)
	return result, nil
}

// reconcile folds the run call's outcome and the monitor's state into the
// final aggregate. Order matters and the first match wins: a cancellation
// observed by the monitor always beats any error from the run call (the
// deterministic tie-break when a crash and a cancel race); an error without a
// cancellation is an unexpected failure, logged exactly once; otherwise the
// monitor's accumulated aggregate stands.
func (c *Coordinator) reconcile(logger log.Logger, session *ExecutionSession, monitor *TestMonitor, root *types.TestNode, crashLog *logging.CrashLog, runErr error) {
	result := monitor.Result()
	result.CrashLogPath = crashLog.Path()

	switch {
	case monitor.Canceled():
		result.Canceled = true
		result.Err = nil
		if reset := types.ResetRunning(root); reset > 0 {
			logger.Debug("Reset running nodes after cancellation", "count", reset)
		}
		session.Cancel(result)
		logger.Info("Run canceled", "finished", result.finished(), "total", result.Total)

	case runErr != nil:
		if IsWorkerCrashed(runErr) {
			logger.Error("Worker crashed", "error", runErr, "crash_log", crashLog.Path())
			if tail := crashLog.Tail(0); tail != "" {
				runErr = fmt.Errorf("%w\ncrash log:\n%s", runErr, tail)
			}
		} else {
			logger.Error("Run failed unexpectedly", "error", runErr)
		}
		result.Err = runErr
		session.Fail(result)

	default:
		session.Complete(result)
		logger.Info("Run completed",
			"status", result.Status,
			"passed", result.Passed,
			"failed", result.Failed,
			"skipped", result.Skipped)
	}
}

// cancelRegistration couples an externally supplied cancellation signal to a
// single idempotent cancel action for the duration of one run.
type cancelRegistration struct {
	once   sync.Once
	action func()
}

// Cancel fires the action at most once.
func (r *cancelRegistration) Cancel() {
	r.once.Do(r.action)
}

// watch subscribes the registration to ctx until the returned unregister
// function is called.
func (r *cancelRegistration) watch(ctx context.Context) (unregister func()) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-stop:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}
}

// attachDiscovered reconciles worker-discovered descriptors with the host
// tree: cases already present keep their nodes, new ones become direct
// children of root. The returned descriptors all carry live node references.
func attachDiscovered(root *types.TestNode, discovered []types.TestCaseDescriptor) []types.TestCaseDescriptor {
	known := types.IndexByID(root)
	out := make([]types.TestCaseDescriptor, 0, len(discovered))
	for _, d := range discovered {
		if node, ok := known[d.ID]; ok {
			out = append(out, *node.Case)
			continue
		}
		leaf := types.NewCaseNode(d.ID, d.Name)
		root.AddChild(leaf)
		out = append(out, *leaf.Case)
	}
	return out
}

func descriptorIDs(cases []types.TestCaseDescriptor) []string {
	ids := make([]string, 0, len(cases))
	for _, c := range cases {
		ids = append(ids, c.ID)
	}
	return ids
}
