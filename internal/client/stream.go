// Package client talks to a typestream server: the HTTP API and the
// reconnecting session stream.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/websocket"

	"github.com/verte-zerg/typestream/internal/stream"
)

// ConnState is the client side connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("stream is not connected")
	// ErrReconnectExhausted is returned by Run once MaxAttempts consecutive
	// reconnects have failed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// RefusedError reports that the server refused the connection.
type RefusedError struct {
	Code    int
	Message string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("connection refused by server (%d): %s", e.Code, e.Message)
}

// Retryable reports whether the refusal may clear up on its own. The server
// keeps a dropped connection registered until it notices the drop, so a
// session that is still connected is retried within the attempt budget.
func (e *RefusedError) Retryable() bool {
	return e.Code == stream.CloseSessionConnected
}

// EventHandler receives the data payload of a server event.
type EventHandler func(data json.RawMessage)

// Stream is a session stream that reconnects on unexpected drops.
// Handlers are registered on the Stream and survive reconnects.
type Stream struct {
	url         string
	origin      string
	sessionID   string
	maxAttempts int
	backoff     backoff.BackOff
	sleep       func(context.Context, time.Duration) error
	dial        func(context.Context) (*websocket.Conn, error)
	logger      hclog.Logger
	onState     func(ConnState)

	state atomic.Int32

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[uint64]EventHandler
	nextID   uint64
	closed   bool
	cancel   context.CancelFunc
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) StreamOption {
	return func(s *Stream) { s.maxAttempts = n }
}

// WithBackOff overrides the reconnect delay policy.
func WithBackOff(b backoff.BackOff) StreamOption {
	return func(s *Stream) { s.backoff = b }
}

// WithSleep replaces the function that waits between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) StreamOption {
	return func(s *Stream) { s.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) StreamOption {
	return func(s *Stream) { s.logger = l }
}

// WithStateHook is called on every state change.
func WithStateHook(fn func(ConnState)) StreamOption {
	return func(s *Stream) { s.onState = fn }
}

// NewStream returns a Stream for sessionID on the server at serverURL
// (an http or https base URL).
func NewStream(serverURL, sessionID string, opts ...StreamOption) (*Stream, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	wsURL := *base
	switch base.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	wsURL.Path = strings.TrimSuffix(base.Path, "/") + "/ws"
	wsURL.RawQuery = url.Values{"sessionId": {sessionID}}.Encode()

	s := &Stream{
		url:         wsURL.String(),
		origin:      base.Scheme + "://" + base.Host,
		sessionID:   sessionID,
		maxAttempts: DefaultMaxAttempts,
		backoff:     NewReconnectBackOff(),
		sleep:       sleepContext,
		logger:      hclog.NewNullLogger(),
		handlers:    make(map[string]map[uint64]EventHandler),
	}
	s.dial = s.dialWebsocket
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current connection state.
func (s *Stream) State() ConnState {
	return ConnState(s.state.Load())
}

// On registers handler for events of msgType and returns a function that
// removes it.
func (s *Stream) On(msgType string, handler EventHandler) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[msgType] == nil {
		s.handlers[msgType] = make(map[uint64]EventHandler)
	}
	s.handlers[msgType][id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[msgType], id)
	}
}

// Send writes one event on the open connection.
func (s *Stream) Send(msgType string, data any) error {
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", msgType, err)
		}
		raw = payload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.State() != StateOpen {
		return ErrNotConnected
	}
	return websocket.JSON.Send(s.conn, stream.Inbound{Type: msgType, SessionID: s.sessionID, Data: raw})
}

// Close ends the stream. Run returns without reconnecting.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Run connects and keeps the stream connected, reconnecting after
// unexpected drops. It returns nil after Close, context cancellation or a
// completed session, a *RefusedError when the server refuses the
// connection for good, and an error wrapping ErrReconnectExhausted once
// MaxAttempts consecutive reconnects have failed. A session that stays
// connected elsewhere is retried like a drop.
func (s *Stream) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.backoff.Reset()
	attempts := 0
	for {
		s.setState(StateConnecting)
		ws, err := s.dial(ctx)
		if err == nil {
			out := s.serve(ws)
			switch {
			case out.refused != nil && !out.refused.Retryable():
				return out.refused
			case out.done:
				return nil
			}
			if out.refused != nil {
				err = out.refused
			} else {
				attempts = 0
				s.backoff.Reset()
				err = out.err
			}
		}
		s.setState(StateDisconnected)
		if s.isClosed() || ctx.Err() != nil {
			return nil
		}

		attempts++
		if attempts > s.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, s.maxAttempts, err)
		}
		delay := s.backoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}
		s.logger.Info("connection lost, reconnecting", "attempt", attempts, "delay", delay, "error", err)
		if err := s.sleep(ctx, delay); err != nil {
			s.setState(StateDisconnected)
			return nil
		}
	}
}

type outcome struct {
	done    bool
	refused *RefusedError
	err     error
}

// serve reads events from ws until it fails.
func (s *Stream) serve(ws *websocket.Conn) outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return outcome{done: true}
	}
	s.conn = ws
	s.mu.Unlock()
	s.setState(StateOpen)

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = ws.Close()
		s.setState(StateDisconnected)
	}()

	completed := false
	var refused *RefusedError
	for {
		var msg stream.Outbound
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			switch {
			case refused != nil:
				return outcome{refused: refused}
			case completed, s.isClosed():
				return outcome{done: true}
			default:
				return outcome{err: err}
			}
		}
		switch msg.Type {
		case stream.TypeSessionComplete:
			completed = true
		case stream.TypeError:
			var data stream.ErrorData
			if err := json.Unmarshal(msg.Data, &data); err == nil && stream.IsRefusal(data.Code) {
				refused = &RefusedError{Code: data.Code, Message: data.Message}
			}
		}
		s.emit(msg)
	}
}

func (s *Stream) emit(msg stream.Outbound) {
	s.mu.Lock()
	handlers := make([]EventHandler, 0, len(s.handlers[msg.Type]))
	for _, h := range s.handlers[msg.Type] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(msg.Data)
	}
}

func (s *Stream) dialWebsocket(ctx context.Context) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(s.url, s.origin)
	if err != nil {
		return nil, err
	}
	return cfg.DialContext(ctx)
}

func (s *Stream) setState(next ConnState) {
	if ConnState(s.state.Swap(int32(next))) == next {
		return
	}
	if s.onState != nil {
		s.onState(next)
	}
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
