package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
)

// echoStreamServer announces a relative endpoint and echoes every POST body back as a message event
func echoStreamServer(t *testing.T, postStatus int) *httptest.Server {
	t.Helper()
	messages := make(chan string, 8)

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: endpoint\ndata: /message?sessionId=s1\n\n")
		flusher.Flush()
		for {
			select {
			case msg := <-messages:
				fmt.Fprintf(w, ": ping\n\nevent: message\ndata: %s\n\n", msg)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1", r.URL.Query().Get("sessionId"))
		body, _ := io.ReadAll(r.Body)
		if postStatus != http.StatusAccepted {
			w.WriteHeader(postStatus)
			return
		}
		messages <- string(body)
		w.WriteHeader(http.StatusAccepted)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openTestSSE(t *testing.T, srv *httptest.Server) *SSEChannel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := OpenSSE(ctx, SSEOptions{
		URL:     srv.URL + "/sse",
		Headers: map[string]string{"Authorization": "Bearer token"},
		Options: Options{ReceiveTimeout: 5 * time.Second},
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestSSERoundTrip(t *testing.T) {
	srv := echoStreamServer(t, http.StatusAccepted)
	ch := openTestSSE(t, srv)

	assert.Equal(t, srv.URL+"/message?sessionId=s1", ch.Endpoint())

	require.NoError(t, ch.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)))
	msg, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"method":"ping"}`, string(msg))
}

func TestSSEPostFailureIsUpstreamError(t *testing.T) {
	srv := echoStreamServer(t, http.StatusInternalServerError)
	ch := openTestSSE(t, srv)

	err := ch.Send(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindUpstream), "got %v", err)
}

func TestSSEStreamLossClosesChannel(t *testing.T) {
	srv := echoStreamServer(t, http.StatusAccepted)
	ch := openTestSSE(t, srv)

	srv.CloseClientConnections()

	_, err := ch.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed), "got %v", err)
}

func TestSSEBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := OpenSSE(context.Background(), SSEOptions{URL: srv.URL}, logging.Discard())
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindUpstream))
}

func TestSSEConnectRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := OpenSSE(context.Background(), SSEOptions{URL: url + "/sse"}, logging.Discard())
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindTransportClosed))
}
