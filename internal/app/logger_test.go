package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	fallbackLogger
}

func TestFallbackLogger_DropsBelowWarn(t *testing.T) {
	var buf bytes.Buffer
	l := &fallbackLogger{output: &buf}

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	assert.Equal(t, "WARN: warn 3\nERROR: error 4\n", buf.String())
}

func TestSetLogger(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { globalLogger = prev })

	SetLogger(nil)
	assert.Same(t, prev, GetLogger())

	custom := &recordingLogger{}
	SetLogger(custom)
	assert.Same(t, custom, GetLogger())
	assert.Same(t, custom, LoggerOr(nil))

	other := &recordingLogger{}
	assert.Same(t, other, LoggerOr(other))
}
