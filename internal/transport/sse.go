package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	commonhttp "github.com/YongpengFu/mcp-server/internal/common/http"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
)

// SSEOptions describes the remote stream endpoint
type SSEOptions struct {
	URL        string
	Headers    map[string]string
	Sequential bool
	Options
}

// SSEChannel receives messages on a Server-Sent Events stream and sends them by POST
// to the endpoint the server announces. A lost stream is not reconnected.
type SSEChannel struct {
	*inbox

	streamURL   *url.URL
	endpoint    *url.URL
	poster      *commonhttp.Client
	logger      *logging.Logger
	interleaved bool

	cancel     context.CancelFunc
	readerDone chan struct{}
	closeOnce  sync.Once
}

// OpenSSE connects the stream and waits, bounded by ctx, for the endpoint event
func OpenSSE(ctx context.Context, opts SSEOptions, logger *logging.Logger) (*SSEChannel, error) {
	opts.Options = opts.Options.withDefaults()
	if logger == nil {
		logger = opts.Logger
	}

	streamURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "invalid stream url")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		cancel()
		return nil, closedError("failed to build stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	type dialResult struct {
		resp *http.Response
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		resp, err := client.Do(req)
		dialed <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case res := <-dialed:
		if res.err != nil {
			cancel()
			return nil, closedError(fmt.Sprintf("failed to connect to %s", streamURL.Redacted()), res.err)
		}
		resp = res.resp
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, customErrors.NewTransportError(customErrors.KindUpstream,
			fmt.Sprintf("stream %s returned status %d", streamURL.Redacted(), resp.StatusCode)).
			WithData("status", resp.StatusCode)
	}

	postOpts := commonhttp.DefaultOptions()
	postOpts.Service = "sse"
	postOpts.Timeout = 0
	postOpts.MaxRetries = 0
	postOpts.Headers = opts.Headers

	c := &SSEChannel{
		inbox:       newInbox(opts.ReceiveTimeout),
		streamURL:   streamURL,
		poster:      commonhttp.NewClient(postOpts),
		logger:      logger,
		interleaved: !opts.Sequential,
		cancel:      cancel,
		readerDone:  make(chan struct{}),
	}

	endpointCh := make(chan *url.URL, 1)
	go c.readStream(resp, endpointCh)

	select {
	case endpoint := <-endpointCh:
		c.endpoint = endpoint
	case <-c.done:
		err := c.closedErr()
		_ = c.Close()
		return nil, err
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}

	logger.InfoKV("Connected SSE stream", "url", streamURL.Redacted(), "endpoint", c.endpoint.Redacted())
	return c, nil
}

func (c *SSEChannel) readStream(resp *http.Response, endpointCh chan<- *url.URL) {
	defer close(c.readerDone)
	defer resp.Body.Close()

	reader := newEventReader(resp.Body)
	announced := false
	for {
		ev, err := reader.Next()
		if err != nil {
			c.shutdown(closedError("event stream ended", err))
			return
		}

		switch ev.Name {
		case "endpoint":
			if announced {
				continue
			}
			ref, err := url.Parse(ev.Data)
			if err != nil {
				c.shutdown(customErrors.WrapTransportError(err, customErrors.KindProtocolViolation, "invalid endpoint event"))
				return
			}
			announced = true
			endpointCh <- c.streamURL.ResolveReference(ref)
		case "message":
			if !c.deliver([]byte(ev.Data)) {
				return
			}
		default:
			c.logger.DebugKV("Ignoring SSE event", "event", ev.Name)
		}
	}
}

// Send POSTs msg to the announced endpoint
func (c *SSEChannel) Send(ctx context.Context, msg []byte) error {
	if c.closed() {
		return c.closedErr()
	}

	_, status, err := c.poster.DoRequest(ctx, http.MethodPost, c.endpoint.String(), json.RawMessage(msg), nil)
	if err == nil {
		return nil
	}

	var svcErr *customErrors.ServiceError
	if errors.As(err, &svcErr) {
		return customErrors.WrapTransportError(err, customErrors.KindUpstream,
			fmt.Sprintf("message endpoint returned status %d", status)).WithData("status", status)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return closedError("failed to post message", err)
}

// Interleaved reports whether the server accepts concurrent requests
func (c *SSEChannel) Interleaved() bool {
	return c.interleaved
}

// Endpoint returns the resolved message endpoint
func (c *SSEChannel) Endpoint() string {
	return c.endpoint.String()
}

// Close cancels the stream and waits for the reader to stop
func (c *SSEChannel) Close() error {
	c.closeOnce.Do(func() {
		c.shutdown(closedError("channel closed", nil))
		c.cancel()
		<-c.readerDone
	})
	return nil
}

var _ Channel = (*SSEChannel)(nil)
