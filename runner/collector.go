package runner

import (
	"github.com/unitbridge/unitbridge/types"
)

// Collector accumulates test case descriptors from a discovery stream,
// preserving arrival order. Descriptors are append-only: none is removed or
// mutated after being added, and the result must not be read before the
// stream's DiscoveryComplete has been observed.
type Collector struct {
	accept func(types.TestCaseDescriptor) bool
	cases  []types.TestCaseDescriptor
	done   bool
}

// NewCollector creates a collector. A nil accept predicate accepts every
// descriptor.
func NewCollector(accept func(types.TestCaseDescriptor) bool) *Collector {
	return &Collector{accept: accept}
}

// Visit consumes one discovery message and reports whether the stream is now
// complete. Messages after completion are ignored.
func (c *Collector) Visit(msg types.DiscoveryMessage) bool {
	if c.done {
		return true
	}
	switch msg.Kind {
	case types.DiscoveryTestCase:
		if c.accept == nil || c.accept(msg.Descriptor) {
			c.cases = append(c.cases, msg.Descriptor)
		}
	case types.DiscoveryComplete:
		c.done = true
	}
	return c.done
}

// Done reports whether DiscoveryComplete has been observed.
func (c *Collector) Done() bool {
	return c.done
}

// Result returns the accumulated descriptors in arrival order.
func (c *Collector) Result() []types.TestCaseDescriptor {
	return c.cases
}

// Collect drains messages until a DiscoveryComplete is observed (or the
// channel is closed) and returns the descriptors satisfying accept, in
// arrival order. It blocks the caller until the stream completes.
func Collect(messages <-chan types.DiscoveryMessage, accept func(types.TestCaseDescriptor) bool) []types.TestCaseDescriptor {
	c := NewCollector(accept)
	for msg := range messages {
		if c.Visit(msg) {
			break
		}
	}
	return c.Result()
}
