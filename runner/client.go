package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"

	"github.com/unitbridge/unitbridge/types"
)

// DefaultConnectTimeout bounds how long Connect waits for the worker's ready
// message after the process starts.
const DefaultConnectTimeout = 10 * time.Second

// RunOptions carries the per-run hooks supplied by the coordinator.
type RunOptions struct {
	// Discovered is invoked once the worker completes discovery, with the
	// collected descriptors in arrival order, before any execution events.
	Discovered func(cases []types.TestCaseDescriptor)

	// Before runs after the handshake, immediately before the run command is
	// sent. An error aborts the run as a fault.
	Before func() error

	// After runs once the worker reports the run as finished.
	After func()
}

// RunnerClient owns the worker process or connection for one run. Dispose
// must be idempotent and safe to call concurrently with an in-flight Run,
// since cancellation disposes the client from a different path than normal
// completion. A client is never reused across runs.
type RunnerClient interface {
	Connect(ctx context.Context, runtimeVersion string) error
	Discover(ctx context.Context, req types.RunRequest) ([]types.TestCaseDescriptor, error)
	Run(ctx context.Context, req types.RunRequest, sink ResultSink, opts RunOptions) error
	Dispose()
}

// ProcessClientConfig configures a subprocess-backed runner client.
type ProcessClientConfig struct {
	Log            log.Logger
	Binary         string
	Args           []string
	Env            []string
	Dir            string
	ConnectTimeout time.Duration
}

var _ RunnerClient = (*processClient)(nil)

// processClient launches the worker as a child process and speaks the
// JSON-lines protocol over its stdin/stdout.
type processClient struct {
	cfg ProcessClientConfig
	log log.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan wireMessage
	stderr *tailBuffer
	waitCh chan error

	writeMu     sync.Mutex
	disposeOnce sync.Once
	disposed    atomic.Bool
}

// NewProcessClient creates a client that will launch the given worker binary.
func NewProcessClient(cfg ProcessClientConfig) (RunnerClient, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("worker binary is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &processClient{
		cfg: cfg,
		log: cfg.Log,
	}, nil
}

// Connect launches the worker process and performs the hello/ready handshake.
func (c *processClient) Connect(ctx context.Context, runtimeVersion string) error {
	if runtimeVersion != "" && !semver.IsValid("v"+strings.TrimPrefix(runtimeVersion, "v")) {
		return &ConnectionError{Err: fmt.Errorf("invalid runtime version %q", runtimeVersion)}
	}

	cmd := exec.Command(c.cfg.Binary, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = append(os.Environ(), c.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ConnectionError{Err: fmt.Errorf("failed to open worker stdin: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ConnectionError{Err: fmt.Errorf("failed to open worker stdout: %w", err)}
	}
	c.stderr = newTailBuffer(defaultStderrTailBytes)
	cmd.Stderr = c.stderr

	if err := cmd.Start(); err != nil {
		return &ConnectionError{Err: fmt.Errorf("failed to start worker %s: %w", c.cfg.Binary, err)}
	}
	c.log.Debug("Worker process started", "binary", c.cfg.Binary, "pid", cmd.Process.Pid)

	c.cmd = cmd
	c.stdin = stdin
	c.events = make(chan wireMessage, 64)
	c.waitCh = make(chan error, 1)
	go readMessages(stdout, c.events, c.log)
	go func() { c.waitCh <- cmd.Wait() }()

	if err := c.send(helloMessage(runtimeVersion)); err != nil {
		c.Dispose()
		return &ConnectionError{Err: err}
	}

	deadline := time.NewTimer(c.cfg.ConnectTimeout)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
		c.Dispose()
		return &ConnectionError{Err: ctx.Err()}
	case <-deadline.C:
		c.Dispose()
		return &ConnectionError{Err: fmt.Errorf("no ready message within %s", c.cfg.ConnectTimeout)}
	case msg, ok := <-c.events:
		if !ok {
			return &ConnectionError{Err: fmt.Errorf("worker exited during handshake: %s", c.stderr.String())}
		}
		if msg.Type != msgReady {
			c.Dispose()
			return &ConnectionError{Err: fmt.Errorf("expected ready message, got %q", msg.Type)}
		}
		if msg.ProtocolVersion != ProtocolVersion {
			c.Dispose()
			return &ConnectionError{Err: fmt.Errorf("protocol version mismatch: worker speaks %d, host speaks %d",
				msg.ProtocolVersion, ProtocolVersion)}
		}
	}

	c.log.Debug("Worker handshake complete", "runtime_version", runtimeVersion)
	return nil
}

// Discover instructs the worker to enumerate the assembly's test cases
// without executing them, returning the descriptors in arrival order once the
// worker signals the end of discovery.
func (c *processClient) Discover(ctx context.Context, req types.RunRequest) ([]types.TestCaseDescriptor, error) {
	if c.cmd == nil {
		return nil, &ConnectionError{Err: fmt.Errorf("client is not connected")}
	}

	if err := c.send(discoverMessage(req)); err != nil {
		return nil, c.classifyStreamEnd(req.CrashLogPath, err)
	}

	collector := NewCollector(nil)
	for {
		select {
		case <-ctx.Done():
			return nil, &CanceledError{}
		case msg, ok := <-c.events:
			if !ok {
				return nil, c.classifyStreamEnd(req.CrashLogPath, nil)
			}
			dm, isDiscovery := msg.discoveryMessage()
			if !isDiscovery {
				c.log.Debug("Ignoring unexpected worker message during discovery", "type", msg.Type)
				continue
			}
			if collector.Visit(dm) {
				return collector.Result(), nil
			}
		}
	}
}

// Run instructs the worker to discover the cases named by the request's
// filter (an empty filter runs everything) and execute them, streaming result
// events into sink as they occur.
func (c *processClient) Run(ctx context.Context, req types.RunRequest, sink ResultSink, opts RunOptions) error {
	if c.cmd == nil {
		return &ConnectionError{Err: fmt.Errorf("client is not connected")}
	}

	if opts.Before != nil {
		if err := opts.Before(); err != nil {
			return &FaultedError{Err: err}
		}
	}

	if err := c.send(runMessage(req)); err != nil {
		return c.classifyStreamEnd(req.CrashLogPath, err)
	}

	collector := NewCollector(c.filterPredicate(req.Filter))
	for {
		select {
		case <-ctx.Done():
			return &CanceledError{}
		case msg, ok := <-c.events:
			if !ok {
				return c.classifyStreamEnd(req.CrashLogPath, nil)
			}
			if dm, isDiscovery := msg.discoveryMessage(); isDiscovery {
				if collector.Visit(dm) && opts.Discovered != nil {
					opts.Discovered(collector.Result())
					opts.Discovered = nil
				}
				continue
			}
			ev, isEvent := msg.resultEvent()
			if !isEvent {
				c.log.Debug("Ignoring unexpected worker message", "type", msg.Type)
				continue
			}
			sink.OnEvent(ev)
			if ev.Kind == types.EventRunFinished {
				if opts.After != nil {
					opts.After()
				}
				return nil
			}
		}
	}
}

// Dispose releases the worker process. It is idempotent and safe to call
// concurrently with an in-flight Run.
func (c *processClient) Dispose() {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		if c.stdin != nil {
			_ = c.stdin.Close()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			c.log.Debug("Killing worker process", "pid", c.cmd.Process.Pid)
			_ = c.cmd.Process.Kill()
		}
	})
}

func (c *processClient) send(m wireMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeMessage(c.stdin, m)
}

// filterPredicate re-checks filter membership on the host side; a worker that
// discovers outside the requested set does not grow the run.
func (c *processClient) filterPredicate(filter []string) func(types.TestCaseDescriptor) bool {
	if len(filter) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(filter))
	for _, id := range filter {
		wanted[id] = struct{}{}
	}
	return func(d types.TestCaseDescriptor) bool {
		_, ok := wanted[d.ID]
		if !ok {
			c.log.Warn("Worker discovered a case outside the filter", "test_id", d.ID)
		}
		return ok
	}
}

// classifyStreamEnd distinguishes a disposal-driven termination (canceled)
// from the worker dying mid-run (crashed).
func (c *processClient) classifyStreamEnd(crashLogPath string, sendErr error) error {
	if c.disposed.Load() {
		return &CanceledError{}
	}

	var exitErr error
	select {
	case exitErr = <-c.waitCh:
	case <-time.After(5 * time.Second):
		exitErr = fmt.Errorf("worker did not exit after its output stream closed")
	}
	if sendErr != nil && exitErr == nil {
		exitErr = sendErr
	}
	return &WorkerCrashedError{
		CrashLogPath: crashLogPath,
		StderrTail:   c.stderr.String(),
		Err:          exitErr,
	}
}
