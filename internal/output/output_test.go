package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_PlainForBuffers(t *testing.T) {
	// Given: a writer over a buffer
	var buf bytes.Buffer
	w := New(&buf, false)

	// When: lines are printed
	w.Success("indexed 3 documents")
	w.Warningf("%d files skipped", 2)
	w.Error("poll failed")
	w.Status("", "indented")

	// Then: no escape codes are written
	assert.False(t, w.Color())
	assert.Equal(t, "✓ indexed 3 documents\n! 2 files skipped\n✗ poll failed\n  indented\n", buf.String())
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestWriter_KeyValueAndDim(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, true)

	w.Heading("Status")
	w.KeyValue("documents", 12)
	w.Dim("first line\nsecond line\n")

	assert.Equal(t,
		"Status\n  documents:   12\n    first line\n    second line\n",
		buf.String())
}
