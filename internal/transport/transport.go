// Package transport provides message-framed channels to MCP hosts: a spawned child
// process speaking newline-delimited JSON over stdio, a Server-Sent Events stream
// with an HTTP POST back channel, and an in-process handler.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
)

// ErrReceiveTimeout is returned by Receive when no message arrived within the receive bound.
// The channel stays open.
var ErrReceiveTimeout = errors.New("transport: receive timed out")

// inboxSize bounds how many decoded messages wait for the reader before the producer blocks
const inboxSize = 64

// Channel is a bidirectional, message-framed connection to one host
type Channel interface {
	// Send writes one complete JSON-RPC message
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until a message is available, the channel closes, ctx ends or the receive bound elapses
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the channel; it is safe to call more than once
	Close() error
	// Interleaved reports whether several requests may be in flight at once
	Interleaved() bool
}

// Options carries the settings shared by every channel kind
type Options struct {
	ReceiveTimeout   time.Duration
	CloseGracePeriod time.Duration
	// HTTPClient is used for SSE streams; nil means a client without an overall timeout
	HTTPClient *http.Client
	Logger     *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = config.DefaultReceiveTimeout
	}
	if o.CloseGracePeriod <= 0 {
		o.CloseGracePeriod = config.DefaultCloseGracePeriod
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// Open dials the backend described by cfg using its configured transport kind
func Open(ctx context.Context, name string, cfg config.MCPServerConfig, opts Options) (Channel, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("server", name)

	switch cfg.GetTransport() {
	case config.TransportStdio:
		return OpenStdio(ctx, StdioOptions{
			Command:    cfg.Command,
			Args:       cfg.Args,
			Cwd:        cfg.Cwd,
			Env:        cfg.Env,
			Sequential: cfg.Sequential,
			Options:    opts,
		}, logger)
	case config.TransportSSE:
		return OpenSSE(ctx, SSEOptions{
			URL:        cfg.URL,
			Headers:    cfg.Headers,
			Sequential: cfg.Sequential,
			Options:    opts,
		}, logger)
	default:
		return nil, customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
			"server %q: unsupported transport %q", name, cfg.Transport)
	}
}

// inbox buffers received messages and records why the channel closed
type inbox struct {
	messages       chan []byte
	done           chan struct{}
	once           sync.Once
	err            error
	receiveTimeout time.Duration
}

func newInbox(receiveTimeout time.Duration) *inbox {
	return &inbox{
		messages:       make(chan []byte, inboxSize),
		done:           make(chan struct{}),
		receiveTimeout: receiveTimeout,
	}
}

// deliver hands msg to readers; it returns false once the inbox is shut down
func (b *inbox) deliver(msg []byte) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.messages <- msg:
		return true
	case <-b.done:
		return false
	}
}

// shutdown marks the channel closed; the first cause wins
func (b *inbox) shutdown(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}

func (b *inbox) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *inbox) closedErr() error {
	<-b.done
	return b.err
}

// Receive returns buffered messages before reporting closure
func (b *inbox) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-b.messages:
		return msg, nil
	default:
	}

	timer := time.NewTimer(b.receiveTimeout)
	defer timer.Stop()

	select {
	case msg := <-b.messages:
		return msg, nil
	case <-b.done:
		select {
		case msg := <-b.messages:
			return msg, nil
		default:
		}
		return nil, b.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrReceiveTimeout
	}
}

func closedError(message string, cause error) error {
	if cause == nil {
		return customErrors.NewTransportError(customErrors.KindTransportClosed, message)
	}
	return customErrors.WrapTransportError(cause, customErrors.KindTransportClosed, message)
}
