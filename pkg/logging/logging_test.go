package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitForCLITextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf, FormatText)

	Info("Test", "hello %s", "world")
	Error("Test", assert.AnError, "failed doing %s", "thing")

	out := buf.String()
	require.Contains(t, out, "hello world")
	require.Contains(t, out, "failed doing thing")
	require.Contains(t, out, "subsystem=Test")
}

func TestInitForCLIJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf, FormatJSON)

	Debug("Test", "should not appear")
	Warn("Test", "visible warning")

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "visible warning"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}
