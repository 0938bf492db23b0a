// Package session runs the MCP request/response protocol over one transport channel:
// the initialize handshake, id-correlated calls and orderly shutdown.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/monitoring"
	"github.com/YongpengFu/mcp-server/internal/observability"
	"github.com/YongpengFu/mcp-server/internal/transport"
)

// cancelNoticeTimeout bounds the best-effort cancellation notice
const cancelNoticeTimeout = time.Second

// Options configures a Session
type Options struct {
	// CallTimeout bounds every request, including the time spent queued
	CallTimeout   time.Duration
	ClientName    string
	ClientVersion string
	Logger        *logging.Logger
	Tracer        observability.TracingHandler
}

type reply struct {
	result json.RawMessage
	err    *rpcError
	fail   error
}

// Session is one protocol-level connection to a single host
type Session struct {
	name    string
	ch      transport.Channel
	opts    Options
	logger  *logging.Logger
	tracer  observability.TracingHandler
	queue   *fifo
	nextID  atomic.Int64
	readCtx context.Context
	stop    context.CancelFunc

	mu          sync.Mutex
	pending     map[int64]chan reply
	closed      bool
	closeErr    error
	initStarted bool
	manifest    *Manifest

	readerDone chan struct{}
	closeOnce  sync.Once
}

// New wraps ch and starts reading from it. The session owns ch from here on.
func New(name string, ch transport.Channel, opts Options) *Session {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = config.DefaultCallTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcp-client"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "0.1.0"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.NewDisabledProvider(opts.Logger)
	}

	readCtx, stop := context.WithCancel(context.Background())
	s := &Session{
		name:       name,
		ch:         ch,
		opts:       opts,
		logger:     opts.Logger.With("server", name),
		tracer:     opts.Tracer,
		readCtx:    readCtx,
		stop:       stop,
		pending:    make(map[int64]chan reply),
		readerDone: make(chan struct{}),
	}
	if !ch.Interleaved() {
		s.queue = &fifo{}
	}

	go s.readLoop()
	return s
}

// Name returns the backend name this session talks to
func (s *Session) Name() string {
	return s.name
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	for {
		msg, err := s.ch.Receive(s.readCtx)
		if errors.Is(err, transport.ErrReceiveTimeout) {
			continue
		}
		if err != nil {
			s.channelLost(err)
			return
		}
		s.dispatch(msg)
	}
}

// channelLost fails every pending call; after Close this is a no-op
func (s *Session) channelLost(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !customErrors.IsKind(err, customErrors.KindTransportClosed) {
		err = customErrors.WrapSessionError(err, customErrors.KindTransportClosed, "connection lost")
	}
	s.closed = true
	s.closeErr = err
	pending := s.pending
	s.pending = make(map[int64]chan reply)
	s.mu.Unlock()

	s.logger.ErrorKV("Transport closed", "error", err, "pending", len(pending))
	for _, slot := range pending {
		slot <- reply{fail: err}
	}
	monitoring.PendingRequests.WithLabelValues(s.name).Sub(float64(len(pending)))
}

func (s *Session) dispatch(data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.WarnKV("Dropping undecodable message", "error", err)
		return
	}

	if msg.Method != "" {
		s.handleServerMessage(&msg)
		return
	}

	if !msg.hasID() {
		s.logger.WarnKV("Dropping response without id")
		return
	}
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		s.logger.WarnKV("Dropping response for unknown request id", "id", string(msg.ID))
		return
	}

	s.mu.Lock()
	slot, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		s.logger.WarnKV("Dropping response for unknown request id", "id", id)
		return
	}
	monitoring.PendingRequests.WithLabelValues(s.name).Dec()
	slot <- reply{result: msg.Result, err: msg.Error}
}

func (s *Session) handleServerMessage(msg *incoming) {
	if !msg.hasID() {
		s.logger.DebugKV("Received notification", "method", msg.Method)
		return
	}

	out := outgoing{JSONRPC: jsonrpcVersion, ID: msg.ID}
	if msg.Method == MethodPing {
		out.Result = map[string]interface{}{}
	} else {
		out.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not supported by client", msg.Method)}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.readCtx, cancelNoticeTimeout)
	defer cancel()
	if err := s.ch.Send(ctx, data); err != nil {
		s.logger.WarnKV("Failed to answer server request", "method", msg.Method, "error", err)
	}
}

// request sends one call and waits for its response, the call timeout, ctx or shutdown
func (s *Session) request(ctx context.Context, method string, params interface{}) (json.RawMessage, *rpcError, error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	if s.queue != nil {
		if err := s.queue.acquire(ctx); err != nil {
			return nil, nil, s.cancelledError(method, err)
		}
		defer s.queue.release()
	}

	id := s.nextID.Add(1)
	slot := make(chan reply, 1)

	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return nil, nil, err
	}
	s.pending[id] = slot
	s.mu.Unlock()
	monitoring.PendingRequests.WithLabelValues(s.name).Inc()

	data, err := json.Marshal(outgoing{
		JSONRPC: jsonrpcVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		s.forget(id)
		return nil, nil, customErrors.WrapSessionError(err, customErrors.KindInvalidArguments, "failed to encode request")
	}

	if err := s.ch.Send(ctx, data); err != nil {
		s.forget(id)
		s.count(method, err)
		if ctx.Err() != nil {
			return nil, nil, s.cancelledError(method, ctx.Err())
		}
		return nil, nil, err
	}

	select {
	case r := <-slot:
		s.count(method, r.fail)
		if r.fail != nil {
			return nil, nil, r.fail
		}
		return r.result, r.err, nil
	case <-ctx.Done():
		s.forget(id)
		s.count(method, ctx.Err())
		s.notifyCancelled(id, ctx.Err())
		return nil, nil, s.cancelledError(method, ctx.Err())
	}
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	return nil
}

func (s *Session) forget(id int64) {
	s.mu.Lock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		monitoring.PendingRequests.WithLabelValues(s.name).Dec()
	}
}

func (s *Session) count(method string, err error) {
	outcome := monitoring.OutcomeOK
	if err != nil {
		outcome = monitoring.OutcomeError
	}
	monitoring.SessionRequests.WithLabelValues(s.name, method, outcome).Inc()
}

func (s *Session) cancelledError(method string, cause error) error {
	return customErrors.WrapSessionError(cause, customErrors.KindCancelled,
		fmt.Sprintf("%s cancelled", method))
}

func (s *Session) notifyCancelled(id int64, reason error) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelNoticeTimeout)
	defer cancel()
	if err := s.notify(ctx, NotificationCancelled, map[string]interface{}{
		"requestId": id,
		"reason":    reason.Error(),
	}); err != nil {
		s.logger.DebugKV("Failed to send cancellation notice", "id", id, "error", err)
	}
}

func (s *Session) notify(ctx context.Context, method string, params interface{}) error {
	data, err := json.Marshal(outgoing{JSONRPC: jsonrpcVersion, Method: method, Params: params})
	if err != nil {
		return err
	}
	return s.ch.Send(ctx, data)
}

// Close releases the channel. Pending calls resolve as cancelled; calling Close again is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasClosed := s.closed
		s.closed = true
		if !wasClosed {
			s.closeErr = customErrors.NewSessionError(customErrors.KindTransportClosed, "session closed")
		}
		pending := s.pending
		s.pending = make(map[int64]chan reply)
		s.mu.Unlock()

		cancelled := customErrors.NewSessionError(customErrors.KindCancelled, "session closed while request was pending")
		for _, slot := range pending {
			slot <- reply{fail: cancelled}
		}
		monitoring.PendingRequests.WithLabelValues(s.name).Sub(float64(len(pending)))

		s.stop()
		err = s.ch.Close()
		<-s.readerDone
		s.logger.DebugKV("Session closed", "cancelled", len(pending))
	})
	return err
}

// Done is closed once the session stops reading from its channel
func (s *Session) Done() <-chan struct{} {
	return s.readerDone
}
