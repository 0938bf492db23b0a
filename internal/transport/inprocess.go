package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// MessageHandler answers one JSON-RPC message; *server.MCPServer satisfies it.
// A nil reply means the message was a notification.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage
}

// InProcessChannel connects a session to a handler living in the same process
type InProcessChannel struct {
	*inbox

	handler   MessageHandler
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// mu orders inflight.Add in Send before inflight.Wait in Close
	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

// NewInProcess returns a channel delivering messages to handler.
// Each message is handled on its own goroutine, so replies may arrive out of order.
func NewInProcess(handler MessageHandler, opts Options) *InProcessChannel {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &InProcessChannel{
		inbox:   newInbox(opts.ReceiveTimeout),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Send hands msg to the handler
func (c *InProcessChannel) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := make(json.RawMessage, len(msg))
	copy(raw, msg)

	c.mu.Lock()
	if c.stopping || c.closed() {
		c.mu.Unlock()
		return c.closedErr()
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.inflight.Done()
		reply := c.handler.HandleMessage(c.ctx, raw)
		if reply == nil {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			c.shutdown(closedError("failed to encode handler reply", err))
			return
		}
		c.deliver(data)
	}()
	return nil
}

// Interleaved is always true: the handler is safe for concurrent use
func (c *InProcessChannel) Interleaved() bool {
	return true
}

// Close cancels in-flight handlers and waits for them to return
func (c *InProcessChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		c.mu.Unlock()

		c.shutdown(closedError("channel closed", nil))
		c.cancel()
		c.inflight.Wait()
	})
	return nil
}

var _ Channel = (*InProcessChannel)(nil)
