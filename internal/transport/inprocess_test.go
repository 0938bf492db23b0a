package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

type echoHandler struct{}

func (echoHandler) HandleMessage(_ context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	var envelope struct {
		ID *int `json:"id"`
	}
	_ = json.Unmarshal(message, &envelope)
	if envelope.ID == nil {
		return nil
	}
	return map[string]interface{}{"jsonrpc": "2.0", "id": *envelope.ID, "result": map[string]interface{}{}}
}

func TestInProcessRequestAndNotification(t *testing.T) {
	ch := NewInProcess(echoHandler{}, Options{ReceiveTimeout: 100 * time.Millisecond})
	defer ch.Close()

	require.NoError(t, ch.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	require.NoError(t, ch.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":4,"method":"ping"}`)))

	msg, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":4,"result":{}}`, string(msg))

	// the notification produced no reply
	_, err = ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestInProcessClose(t *testing.T) {
	ch := NewInProcess(echoHandler{}, Options{})
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	err := ch.Send(context.Background(), []byte(`{"id":1}`))
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed))

	_, err = ch.Receive(context.Background())
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed))
}

func TestInProcessSendRacingClose(t *testing.T) {
	for round := 0; round < 20; round++ {
		ch := NewInProcess(echoHandler{}, Options{})

		start := make(chan struct{})
		errs := make(chan error, 32)
		for i := 0; i < cap(errs); i++ {
			go func(id int) {
				<-start
				errs <- ch.Send(context.Background(), []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, id)))
			}(i)
		}
		close(start)
		require.NoError(t, ch.Close())

		for i := 0; i < cap(errs); i++ {
			if err := <-errs; err != nil {
				assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed), "got %v", err)
			}
		}
		err := ch.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":99,"method":"ping"}`))
		assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed))
	}
}
