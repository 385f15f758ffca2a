package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/unitbridge/unitbridge/types"
)

// ProtocolVersion is the wire protocol version spoken with the worker.
const ProtocolVersion = 1

// Message type tags. Host to worker: hello, run. Worker to host: everything
// else.
const (
	msgHello             = "hello"
	msgReady             = "ready"
	msgDiscover          = "discover"
	msgRun               = "run"
	msgTestCase          = "testCaseDiscovered"
	msgDiscoveryComplete = "discoveryComplete"
	msgStarted           = "started"
	msgPassed            = "passed"
	msgFailed            = "failed"
	msgSkipped           = "skipped"
	msgRunFinished       = "runFinished"
)

// wireMessage is the JSON-lines envelope exchanged with the worker over its
// stdio. One message per line in both directions.
type wireMessage struct {
	Type string `json:"type"`

	// Handshake
	RuntimeVersion  string `json:"runtimeVersion,omitempty"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`

	// Run command
	Assembly          string   `json:"assembly,omitempty"`
	IDs               []string `json:"ids,omitempty"`
	ConfigPath        string   `json:"configPath,omitempty"`
	SupportAssemblies []string `json:"supportAssemblies,omitempty"`
	CrashLog          string   `json:"crashLog,omitempty"`

	// Discovery and result events
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name,omitempty"`
	DurationMs float64 `json:"durationMs,omitempty"`
	Message    string  `json:"message,omitempty"`
	Stack      string  `json:"stack,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

func helloMessage(runtimeVersion string) wireMessage {
	return wireMessage{
		Type:            msgHello,
		RuntimeVersion:  runtimeVersion,
		ProtocolVersion: ProtocolVersion,
	}
}

func discoverMessage(req types.RunRequest) wireMessage {
	return wireMessage{
		Type:              msgDiscover,
		Assembly:          req.AssemblyPath,
		ConfigPath:        req.ConfigPath,
		SupportAssemblies: req.SupportAssemblies,
	}
}

func runMessage(req types.RunRequest) wireMessage {
	return wireMessage{
		Type:              msgRun,
		Assembly:          req.AssemblyPath,
		IDs:               req.Filter,
		ConfigPath:        req.ConfigPath,
		SupportAssemblies: req.SupportAssemblies,
		CrashLog:          req.CrashLogPath,
	}
}

// discoveryMessage converts the envelope to a DiscoveryMessage, if it is one.
func (m wireMessage) discoveryMessage() (types.DiscoveryMessage, bool) {
	switch m.Type {
	case msgTestCase:
		return types.DiscoveryMessage{
			Kind:       types.DiscoveryTestCase,
			Descriptor: types.TestCaseDescriptor{ID: m.ID, Name: m.Name},
		}, true
	case msgDiscoveryComplete:
		return types.DiscoveryMessage{Kind: types.DiscoveryComplete}, true
	}
	return types.DiscoveryMessage{}, false
}

// resultEvent converts the envelope to a ResultEvent, if it is one.
func (m wireMessage) resultEvent() (types.ResultEvent, bool) {
	var kind types.EventKind
	switch m.Type {
	case msgStarted:
		kind = types.EventTestStarted
	case msgPassed:
		kind = types.EventTestPassed
	case msgFailed:
		kind = types.EventTestFailed
	case msgSkipped:
		kind = types.EventTestSkipped
	case msgRunFinished:
		kind = types.EventRunFinished
	default:
		return types.ResultEvent{}, false
	}
	return types.ResultEvent{
		Kind:     kind,
		TestID:   m.ID,
		Duration: time.Duration(m.DurationMs * float64(time.Millisecond)),
		Message:  m.Message,
		Stack:    m.Stack,
		Reason:   m.Reason,
	}, true
}

// writeMessage encodes one message as a single JSON line.
func writeMessage(w io.Writer, m wireMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Type, err)
	}
	return nil
}

// readMessages scans JSON lines from the worker's stdout into out until EOF,
// then closes out. Lines that do not parse are logged and skipped.
func readMessages(r io.Reader, out chan<- wireMessage, logger log.Logger) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m wireMessage
		if err := json.Unmarshal(line, &m); err != nil {
			logger.Debug("Skipping unparseable worker output", "error", err)
			continue
		}
		out <- m
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("Worker output stream closed", "error", err)
	}
}
