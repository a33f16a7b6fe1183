package loading

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderReleaseIsIdempotent(t *testing.T) {
	r := &Recorder{}
	release := r.Begin("Loading loras...")
	assert.Equal(t, 1, r.Active())
	release()
	release()
	assert.Equal(t, 0, r.Active())
	assert.Equal(t, 1, r.Begins())
}

func TestTerminalNestedBegin(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	outer := term.Begin("outer")
	inner := term.Begin("inner")
	term.Progress(50, "halfway")
	inner()
	assert.NotNil(t, term.writer, "outer scope still holds the writer")
	outer()
	assert.Nil(t, term.writer)

	// progress outside a scope is dropped
	term.Progress(100, "ignored")
	assert.Contains(t, buf.String(), "halfway")
	assert.NotContains(t, buf.String(), "ignored")
}
