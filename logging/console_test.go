package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/unitbridge/unitbridge/types"
)

func TestConsolePrinterOutput(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	p := NewConsolePrinter(&buf)

	p.TestStarted("Math.TestAdd")
	p.TestFinished("Math.TestAdd", types.NodeStatusPass, 1500*time.Millisecond)
	p.TestFinished("Math.TestSub", types.NodeStatusFail, 20*time.Millisecond)
	p.TestFinished("IO.TestRead", types.NodeStatusSkip, 0)
	p.RunFinished()

	out := buf.String()
	assert.Contains(t, out, "... Math.TestAdd")
	assert.Contains(t, out, "✓ Math.TestAdd (1.50s)")
	assert.Contains(t, out, "✗ Math.TestSub")
	assert.Contains(t, out, "- IO.TestRead (skipped)")
}
