package aggregator

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/host"
	"github.com/YongpengFu/mcp-server/internal/transport"
)

// mathServerEnv makes the test binary act as the math host on stdio
const mathServerEnv = "MCP_AGGREGATOR_TEST_MATH_SERVER"

func TestMain(m *testing.M) {
	if os.Getenv(mathServerEnv) == "1" {
		srv, err := host.NewMathServer(nil)
		if err != nil {
			os.Exit(2)
		}
		if err := srv.ServeStdio(context.Background(), os.Stdin, os.Stdout); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func mathSubprocess(t *testing.T) config.MCPServerConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stdio subprocess test uses unix process groups")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	return config.MCPServerConfig{
		Command:   exe,
		Args:      []string{"-test.run=^$"},
		Transport: "stdio",
		Env:       map[string]string{mathServerEnv: "1"},
	}
}

func TestConnectAllOverStdioSubprocess(t *testing.T) {
	a := New(Options{CallTimeout: 10 * time.Second})
	require.NoError(t, a.Configure(map[string]config.MCPServerConfig{"math": mathSubprocess(t)}))
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	catalog, err := a.ConnectAll(ctx)
	require.NoError(t, err)
	require.Empty(t, a.Failures())
	assert.Equal(t, []string{"add", "multiply", "subtract"}, catalog.Names())

	assert.Equal(t, "5", invokeText(t, a, "add", map[string]interface{}{"a": 2, "b": 3}))
	assert.Equal(t, "-1", invokeText(t, a, "subtract", map[string]interface{}{"a": 2, "b": 3}))

	_, err = a.Invoke(ctx, "add", map[string]interface{}{"a": "x", "b": 3})
	assert.True(t, customErrors.IsKind(err, customErrors.KindInvalidArguments), "got %v", err)
}

func TestStdioAndInProcessBackendsTogether(t *testing.T) {
	servers := map[string]config.MCPServerConfig{
		"math":  mathSubprocess(t),
		"words": {Command: "words"},
	}
	embedded := &fixture{hosts: map[string]*host.Server{"words": echoHost(t, "words", "upper")}}
	opts := Options{CallTimeout: 10 * time.Second}
	opts.Dialer = func(ctx context.Context, name string, cfg config.MCPServerConfig) (transport.Channel, error) {
		if name == "words" {
			return embedded.dial(ctx, name, cfg)
		}
		return transport.Open(ctx, name, cfg, transport.Options{})
	}
	a := New(opts)
	require.NoError(t, a.Configure(servers))
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	catalog, err := a.ConnectAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, catalog.Len())
	assert.Equal(t, "6", invokeText(t, a, "multiply", map[string]interface{}{"a": 2, "b": 3}))
	assert.Equal(t, "words:upper", invokeText(t, a, "upper", nil))
}
