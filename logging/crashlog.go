// Package logging provides the crash-log artifact lifecycle and console
// progress output for test runs.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultCrashLogTailBytes bounds how much of a crash log is read back into
// diagnostics.
const DefaultCrashLogTailBytes = 32 * 1024

// CrashLog is the temporary file a worker may write diagnostic content to on
// abnormal termination. It is owned by exactly one run and deleted on every
// exit path, whether or not the worker wrote to it.
type CrashLog struct {
	path string
	log  log.Logger

	removeOnce sync.Once
}

// NewCrashLog creates an empty crash-log file in dir (or the system temp
// directory when dir is empty).
func NewCrashLog(dir string, logger log.Logger) (*CrashLog, error) {
	if logger == nil {
		logger = log.Root()
	}
	f, err := os.CreateTemp(dir, "unitbridge-crash-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create crash log: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close crash log: %w", err)
	}
	logger.Debug("Crash log created", "path", path)
	return &CrashLog{path: path, log: logger}, nil
}

// Path returns the filesystem path handed to the worker.
func (c *CrashLog) Path() string {
	return c.path
}

// Tail reads back up to maxBytes of the crash log with ANSI escapes stripped,
// for embedding in error messages. An unwritten or unreadable log yields "".
func (c *CrashLog) Tail(maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultCrashLogTailBytes
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return ""
	}
	if len(data) > maxBytes {
		data = data[len(data)-maxBytes:]
	}
	return strings.TrimSpace(stripansi.Strip(string(data)))
}

// Remove deletes the crash-log file. It is idempotent; a file the worker
// never wrote is removed all the same.
func (c *CrashLog) Remove() {
	c.removeOnce.Do(func() {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			c.log.Warn("Failed to remove crash log", "path", c.path, "error", err)
			return
		}
		c.log.Debug("Crash log removed", "path", c.path)
	})
}
