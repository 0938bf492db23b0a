//go:build unix

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
)

func openShell(t *testing.T, script string, opts Options) *StdioChannel {
	t.Helper()
	ch, err := OpenStdio(context.Background(), StdioOptions{
		Command: "/bin/sh",
		Args:    []string{"-c", script},
		Env:     map[string]string{"GREETING": "hello"},
		Options: opts,
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestStdioEcho(t *testing.T) {
	ch := openShell(t, "cat", Options{ReceiveTimeout: 5 * time.Second})
	assert.True(t, ch.Interleaved())

	require.NoError(t, ch.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1}`)))
	msg, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1}`, string(msg))
}

func TestStdioEnvironmentOverride(t *testing.T) {
	ch := openShell(t, `printf '{"greeting":"%s"}\n' "$GREETING"; cat >/dev/null`, Options{ReceiveTimeout: 5 * time.Second})

	msg, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello"}`, string(msg))
}

func TestStdioReceiveTimeoutKeepsChannelOpen(t *testing.T) {
	ch := openShell(t, "cat", Options{ReceiveTimeout: 50 * time.Millisecond})

	_, err := ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrReceiveTimeout)

	require.NoError(t, ch.Send(context.Background(), []byte(`{"ok":true}`)))
	ch.receiveTimeout = 5 * time.Second
	msg, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(msg))
}

func TestStdioProcessExitClosesChannel(t *testing.T) {
	ch := openShell(t, "read line; exit 3", Options{ReceiveTimeout: 5 * time.Second, CloseGracePeriod: time.Second})

	require.NoError(t, ch.Send(context.Background(), []byte(`{}`)))
	_, err := ch.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed), "got %v", err)
	assert.Contains(t, err.Error(), "exit status 3")

	err = ch.Send(context.Background(), []byte(`{}`))
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed))
}

func TestStdioCloseKillsStubbornChild(t *testing.T) {
	ch := openShell(t, `trap "" TERM; sleep 30`, Options{CloseGracePeriod: 100 * time.Millisecond})

	start := time.Now()
	require.NoError(t, ch.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-ch.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("child was not reaped")
	}

	// idempotent
	require.NoError(t, ch.Close())
}

func TestStdioSpawnFailure(t *testing.T) {
	_, err := OpenStdio(context.Background(), StdioOptions{Command: "/definitely/not/a/binary"}, logging.Discard())
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed))
}
