package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("host", LevelWarn, &buf)

	logger.Info("hidden %d", 1)
	logger.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] host: shown 2")

	logger.SetMinLevel(LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] host: now visible")
}

func TestKeyValueFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("session", LevelDebug, &buf).With("server", "math")

	logger.InfoKV("call completed", "tool", "add", "id", 3)
	logger.ErrorKV("odd pairs", "dangling")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] session: call completed server=math tool=add id=3")
	assert.Contains(t, lines[1], "dangling=<missing value>")
}

func TestDerivedLoggersShareSink(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter("host", LevelError, &buf)
	child := root.Named("registry")

	root.SetMinLevel(LevelInfo)
	child.Info("registered %s", "terminal")

	assert.Contains(t, buf.String(), "[INFO] host.registry: registered terminal")
	assert.True(t, child.Enabled(LevelInfo))
	assert.False(t, child.Enabled(LevelDebug))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestStdLoggerBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("bridge", LevelInfo, &buf)
	logger.StdLogger().Println("from std")
	assert.Contains(t, buf.String(), "[INFO] bridge: from std")
}
