package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMsg(t *testing.T) {
	assert.Equal(t, "hello", formatMsg("hello"))
	assert.Equal(t, "offer saved offerID=off-1 attempt=2", formatMsg("offer saved", "offerID", "off-1", "attempt", 2))
	assert.Equal(t, "odd key=missing", formatMsg("odd", "key"))
	assert.Equal(t, `quoted note="two words"`, formatMsg("quoted", "note", "two words"))
}

func TestLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("warn", &buf).With("component", "outbox")

	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept", "messageID", 7)
	assert.Contains(t, buf.String(), "WARN: ")
	assert.Contains(t, buf.String(), "kept component=outbox messageID=7")
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	l.Error("nothing happens", "k", "v")
	l.With("a", 1).Debug("still nothing")
}
