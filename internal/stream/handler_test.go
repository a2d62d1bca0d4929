package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/verte-zerg/typestream/internal/clock"
	"github.com/verte-zerg/typestream/internal/model"
	"github.com/verte-zerg/typestream/internal/session"
)

type spyStore struct {
	*session.MemoryStore
	gets      atomic.Int32
	panicOnce atomic.Bool
}

func (s *spyStore) Get(id string) (model.Session, error) {
	s.gets.Add(1)
	return s.MemoryStore.Get(id)
}

func (s *spyStore) Modify(id string, fn func(*model.Session) error) (model.Session, error) {
	if s.panicOnce.CompareAndSwap(true, false) {
		panic("store exploded")
	}
	return s.MemoryStore.Modify(id, fn)
}

type memoryResults struct {
	mu      sync.Mutex
	results []model.Result
}

func (m *memoryResults) InsertResult(_ context.Context, r model.Result) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return int64(len(m.results)), nil
}

func (m *memoryResults) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

type harness struct {
	store   *spyStore
	clock   *clock.Manual
	results *memoryResults
	handler *Handler
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	st := &spyStore{MemoryStore: session.NewMemoryStore(session.WithClock(clk))}
	results := &memoryResults{}
	h := NewHandler(st, WithClock(clk), WithResults(results))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &harness{store: st, clock: clk, results: results, handler: h, server: srv}
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws" + query
	conn, err := websocket.Dial(wsURL, "", h.server.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := websocket.JSON.Send(conn, msg); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got Outbound
	if err := websocket.JSON.Receive(conn, &got); err != nil {
		t.Fatalf("receive server frame: %v", err)
	}
	return got
}

func readError(t *testing.T, conn *websocket.Conn) ErrorData {
	t.Helper()
	got := readEvent(t, conn)
	if got.Type != TypeError {
		t.Fatalf("frame type = %q, want %q (payload %s)", got.Type, TypeError, got.Data)
	}
	var data ErrorData
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return data
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var frame []byte
	if err := websocket.Message.Receive(conn, &frame); err == nil {
		t.Fatalf("expected connection to be closed, got frame %s", frame)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectWithoutSessionIDIsRefusedBeforeLookup(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "")

	got := readError(t, conn)
	if got.Code != CloseSessionIDRequired || got.Message != ReasonSessionIDRequired {
		t.Fatalf("unexpected refusal %+v", got)
	}
	expectClosed(t, conn)
	if n := h.store.gets.Load(); n != 0 {
		t.Fatalf("store lookups = %d, want 0", n)
	}
}

func TestConnectUnknownSessionIsRefused(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "?sessionId=missing")

	got := readError(t, conn)
	if got.Code != CloseInvalidSession || got.Message != ReasonInvalidSession {
		t.Fatalf("unexpected refusal %+v", got)
	}
	expectClosed(t, conn)
}

func TestSecondConnectionIsRefused(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	first := h.dial(t, "?sessionId="+sess.ID)
	waitFor(t, func() bool { return h.handler.Connected(sess.ID) })

	second := h.dial(t, "?sessionId="+sess.ID)
	got := readError(t, second)
	if got.Code != CloseSessionConnected {
		t.Fatalf("code = %d, want %d", got.Code, CloseSessionConnected)
	}
	expectClosed(t, second)

	send(t, first, map[string]any{"type": "BOGUS"})
	if got := readError(t, first); got.Code != 400 {
		t.Fatalf("first connection should still be served, got %+v", got)
	}
}

func TestUnknownTypeKeepsConnectionOpen(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	send(t, conn, map[string]any{"type": "TELEPORT", "data": map[string]any{}})
	got := readError(t, conn)
	if got.Code != 400 || got.ErrorCode != "INVALID_MESSAGE_TYPE" {
		t.Fatalf("unexpected error %+v", got)
	}

	send(t, conn, map[string]any{"type": TypeStartSession})
	waitFor(t, func() bool {
		s, _ := h.store.Get(sess.ID)
		return s.Status == model.StatusActive
	})
}

func TestSessionIDMismatchIsValidationError(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	send(t, conn, map[string]any{"type": TypeStartSession, "sessionId": "someone-else"})
	got := readError(t, conn)
	if got.Code != 400 || got.ErrorCode != "SESSION_ID_MISMATCH" {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestCompletionIsEmittedOnce(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": map[string]any{"input": "h"}})
	waitFor(t, func() bool {
		s, _ := h.store.Get(sess.ID)
		return s.Started()
	})
	h.clock.Advance(6 * time.Second)

	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": "hello"})
	got := readEvent(t, conn)
	if got.Type != TypeMetricsUpdate {
		t.Fatalf("frame type = %q, want %q", got.Type, TypeMetricsUpdate)
	}
	var update MetricsUpdate
	if err := json.Unmarshal(got.Data, &update); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if update.Analysis.CorrectCharacters != 5 || update.Metrics.WPM != 10 {
		t.Fatalf("unexpected metrics update %+v", update)
	}

	h.clock.Advance(6 * time.Second)
	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": map[string]any{"input": "hello world"}})
	if got := readEvent(t, conn); got.Type != TypeMetricsUpdate {
		t.Fatalf("frame type = %q, want %q", got.Type, TypeMetricsUpdate)
	}
	got = readEvent(t, conn)
	if got.Type != TypeSessionComplete {
		t.Fatalf("frame type = %q, want %q", got.Type, TypeSessionComplete)
	}
	var done SessionComplete
	if err := json.Unmarshal(got.Data, &done); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if done.SessionID != sess.ID || done.Metrics.WPM != 11 || done.Metrics.Accuracy != 100 {
		t.Fatalf("unexpected completion %+v", done)
	}

	stored, err := h.store.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != model.StatusCompleted || stored.EndTime == nil {
		t.Fatalf("unexpected stored session %+v", stored)
	}

	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": map[string]any{"input": "hello worldd"}})
	if got := readError(t, conn); got.Code != 409 {
		t.Fatalf("unexpected error %+v", got)
	}
	send(t, conn, map[string]any{"type": TypeEndSession})
	if got := readError(t, conn); got.Code != 409 {
		t.Fatalf("unexpected error %+v", got)
	}
	if n := h.results.count(); n != 1 {
		t.Fatalf("recorded results = %d, want 1", n)
	}
}

func TestEndSessionFinalizesEarly(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	send(t, conn, map[string]any{"type": TypeStartSession})
	waitFor(t, func() bool {
		s, _ := h.store.Get(sess.ID)
		return s.Started()
	})
	h.clock.Advance(3 * time.Second)
	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": "hel"})
	if got := readEvent(t, conn); got.Type != TypeMetricsUpdate {
		t.Fatalf("frame type = %q, want %q", got.Type, TypeMetricsUpdate)
	}
	send(t, conn, map[string]any{"type": TypeEndSession})
	if got := readEvent(t, conn); got.Type != TypeSessionComplete {
		t.Fatalf("frame type = %q, want %q", got.Type, TypeSessionComplete)
	}
	stored, _ := h.store.Get(sess.ID)
	if !stored.Completed() || stored.Input != "hel" {
		t.Fatalf("unexpected stored session %+v", stored)
	}
}

func TestInvalidInputPayloadIsValidationError(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": map[string]any{"text": 5}})
	if got := readError(t, conn); got.Code != 400 || got.ErrorCode != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestEmptyTextSessionIsRejected(t *testing.T) {
	h := newHarness(t)
	sess := h.store.Create()
	conn := h.dial(t, "?sessionId="+sess.ID)

	send(t, conn, map[string]any{"type": TypeStartSession})
	if got := readError(t, conn); got.Code != 400 || got.ErrorCode != "SESSION_TEXT_EMPTY" {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestInternalFailureIsReportedAndRecovered(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	h.store.panicOnce.Store(true)
	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": "h"})
	got := readError(t, conn)
	if got.Code != 500 || got.Message != "An unexpected error occurred" {
		t.Fatalf("unexpected error %+v", got)
	}
	stored, _ := h.store.Get(sess.ID)
	if stored.Status != model.StatusError || stored.LastError == nil {
		t.Fatalf("expected error status, got %+v", stored)
	}

	send(t, conn, map[string]any{"type": TypeInputUpdate, "data": "h"})
	waitFor(t, func() bool {
		s, _ := h.store.Get(sess.ID)
		return s.Status == model.StatusActive && s.LastError == nil
	})
}

func TestMalformedFramesExhaustBudget(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)

	for i := 0; i < maxDecodeErrorsPerConn; i++ {
		if err := websocket.Message.Send(conn, "{not json"); err != nil {
			t.Fatalf("send: %v", err)
		}
		if got := readError(t, conn); got.ErrorCode != "INVALID_MESSAGE" {
			t.Fatalf("unexpected error %+v", got)
		}
	}
	expectClosed(t, conn)
}

func TestCloseUnregistersAndKeepsSession(t *testing.T) {
	h := newHarness(t)
	sess := h.store.CreateWithText("hello world", 2)
	conn := h.dial(t, "?sessionId="+sess.ID)
	waitFor(t, func() bool { return h.handler.Connected(sess.ID) })

	_ = conn.Close()
	waitFor(t, func() bool { return !h.handler.Connected(sess.ID) })
	if _, err := h.store.Get(sess.ID); err != nil {
		t.Fatalf("session should be retained after close: %v", err)
	}

	again := h.dial(t, "?sessionId="+sess.ID)
	send(t, again, map[string]any{"type": "BOGUS"})
	if got := readError(t, again); got.Code != 400 {
		t.Fatalf("reconnect should be accepted, got %+v", got)
	}
}

func TestIdleConnectionIsClosed(t *testing.T) {
	clk := clock.NewManual(time.Now())
	st := session.NewMemoryStore(session.WithClock(clk))
	h := NewHandler(st, WithClock(clk), WithIdleTimeout(50*time.Millisecond))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	sess := st.CreateWithText("hello", 1)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + sess.ID
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	expectClosed(t, conn)
	waitFor(t, func() bool { return h.Connections() == 0 })
}

func TestParseEventKind(t *testing.T) {
	cases := map[string]EventKind{
		"START_SESSION": EventStartSession,
		"INPUT_UPDATE":  EventInputUpdate,
		"END_SESSION":   EventEndSession,
		"input_update":  EventUnknown,
		"":              EventUnknown,
	}
	for in, want := range cases {
		if got := ParseEventKind(in); got != want {
			t.Fatalf("ParseEventKind(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseInput(t *testing.T) {
	if got, err := ParseInput(json.RawMessage(`"abc"`)); err != nil || got != "abc" {
		t.Fatalf("bare string: %q %v", got, err)
	}
	if got, err := ParseInput(json.RawMessage(`{"input":""}`)); err != nil || got != "" {
		t.Fatalf("empty input: %q %v", got, err)
	}
	if _, err := ParseInput(json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected error for missing input")
	}
	if _, err := ParseInput(nil); err == nil {
		t.Fatalf("expected error for missing data")
	}
}
