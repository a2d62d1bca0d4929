// Package stream implements the per-session streaming protocol over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"

	"github.com/verte-zerg/typestream/internal/analysis"
	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/clock"
	"github.com/verte-zerg/typestream/internal/model"
	"github.com/verte-zerg/typestream/internal/session"
	"github.com/verte-zerg/typestream/internal/telemetry"
)

const (
	// DefaultIdleTimeout closes connections that send nothing for this long.
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultMaxPayloadBytes bounds a single inbound frame.
	DefaultMaxPayloadBytes = 64 * 1024

	maxDecodeErrorsPerConn = 3
)

// ResultSink records the results of completed sessions.
type ResultSink interface {
	InsertResult(ctx context.Context, r model.Result) (int64, error)
}

// Handler serves the streaming endpoint.
type Handler struct {
	store       session.Store
	results     ResultSink
	analyzer    *analysis.Analyzer
	clock       clock.Clock
	logger      hclog.Logger
	tracer      trace.Tracer
	registry    *registry
	idleTimeout time.Duration
	maxPayload  int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithClock sets the clock used for session timestamps.
func WithClock(c clock.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// WithResults records completed sessions in sink.
func WithResults(sink ResultSink) Option {
	return func(h *Handler) { h.results = sink }
}

// WithIdleTimeout overrides DefaultIdleTimeout. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) { h.idleTimeout = d }
}

// WithMaxPayloadBytes overrides DefaultMaxPayloadBytes.
func WithMaxPayloadBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxPayload = n
		}
	}
}

// NewHandler returns a Handler backed by store.
func NewHandler(store session.Store, opts ...Option) *Handler {
	h := &Handler{
		store:       store,
		analyzer:    analysis.New(),
		clock:       clock.System{},
		logger:      hclog.NewNullLogger(),
		tracer:      telemetry.Tracer("github.com/verte-zerg/typestream/internal/stream"),
		registry:    newRegistry(),
		idleTimeout: DefaultIdleTimeout,
		maxPayload:  DefaultMaxPayloadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades GET requests to a WebSocket connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	websocket.Handler(h.serveConn).ServeHTTP(w, r)
}

// Connected reports whether a connection is registered for the session.
func (h *Handler) Connected(sessionID string) bool {
	_, ok := h.registry.get(sessionID)
	return ok
}

// Connections returns the number of registered connections.
func (h *Handler) Connections() int {
	return h.registry.len()
}

// Disconnect closes the connections of the given sessions.
func (h *Handler) Disconnect(sessionIDs []string) {
	for _, id := range sessionIDs {
		if p, ok := h.registry.get(id); ok {
			h.logger.Debug("closing connection of removed session", "session", id)
			_ = p.close()
		}
	}
}

// CloseAll closes every registered connection.
func (h *Handler) CloseAll() {
	for _, p := range h.registry.all() {
		_ = p.close()
	}
}

func (h *Handler) serveConn(ws *websocket.Conn) {
	p := newPeer(ws)
	defer func() {
		_ = p.close()
	}()

	req := ws.Request()
	sessionID := strings.TrimSpace(req.URL.Query().Get("sessionId"))
	if sessionID == "" {
		h.refuse(p, CloseSessionIDRequired, ReasonSessionIDRequired, apperr.CodeSessionIDRequired)
		return
	}
	if _, err := h.store.Get(sessionID); err != nil {
		h.refuse(p, CloseInvalidSession, ReasonInvalidSession, apperr.CodeSessionNotFound)
		return
	}
	if !h.registry.register(sessionID, p) {
		h.refuse(p, CloseSessionConnected, ReasonSessionConnected, apperr.CodeSessionConnected)
		return
	}
	defer h.registry.unregister(sessionID, p)

	p.transition(StateOpen)
	ws.MaxPayloadBytes = h.maxPayload
	logger := h.logger.With("session", sessionID)
	logger.Debug("connection opened", "remote", req.RemoteAddr)
	ctx := req.Context()

	for p.State() == StateOpen {
		if h.idleTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(h.idleTimeout))
		}
		var frame []byte
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			switch {
			case errors.Is(err, websocket.ErrFrameTooLarge):
				h.report(ctx, sessionID, apperr.New(apperr.CodeInvalidMessage, "payload too large"))
				continue
			case errors.Is(err, io.EOF):
				logger.Debug("connection closed by client")
			case errors.Is(err, os.ErrDeadlineExceeded):
				logger.Info("closing idle connection", "idle_timeout", h.idleTimeout)
			default:
				logger.Debug("connection read failed", "error", err)
			}
			return
		}
		h.handleFrame(ctx, p, sessionID, frame)
	}
	if p.State() == StateErrored {
		logger.Warn("connection errored")
	}
}

// refuse reports the refusal as an ERROR event carrying the close code, then closes with it.
func (h *Handler) refuse(p *peer, closeCode int, reason string, code apperr.Code) {
	h.logger.Info("refusing connection", "code", closeCode, "reason", reason)
	_ = p.send(TypeError, ErrorData{Message: reason, Code: closeCode, ErrorCode: string(code)})
	if err := p.closeWith(closeCode, reason); err != nil {
		h.logger.Debug("close after refusal failed", "error", err)
	}
}

func (h *Handler) handleFrame(ctx context.Context, p *peer, sessionID string, frame []byte) {
	var msg Inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		p.decodeErrors++
		h.report(ctx, sessionID, apperr.Wrap(apperr.CodeInvalidMessage, "invalid message payload", err))
		if p.decodeErrors >= maxDecodeErrorsPerConn {
			p.transition(StateErrored)
		}
		return
	}
	p.decodeErrors = 0

	kind := ParseEventKind(msg.Type)
	ctx, span := h.tracer.Start(ctx, "stream "+kind.String(), trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("event.type", msg.Type),
	))
	defer span.End()

	if err := h.dispatch(ctx, p, sessionID, kind, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
		h.report(ctx, sessionID, err)
	}
}

// dispatch runs one event. A panic is converted into an internal error.
func (h *Handler) dispatch(ctx context.Context, p *peer, sessionID string, kind EventKind, msg Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Internal(panicError{value: r})
		}
	}()

	if msg.SessionID != "" && msg.SessionID != sessionID {
		return apperr.New(apperr.CodeSessionIDMismatch, "sessionId does not match the connection")
	}
	switch kind {
	case EventStartSession:
		return h.startSession(sessionID)
	case EventInputUpdate:
		input, err := ParseInput(msg.Data)
		if err != nil {
			return err
		}
		return h.inputUpdate(ctx, p, sessionID, input)
	case EventEndSession:
		return h.endSession(ctx, p, sessionID)
	default:
		return apperr.New(apperr.CodeInvalidMessageType, "unknown message type: "+msg.Type)
	}
}
