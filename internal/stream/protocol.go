package stream

import (
	"bytes"
	"encoding/json"

	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/model"
)

// Wire names of inbound events.
const (
	TypeStartSession = "START_SESSION"
	TypeInputUpdate  = "INPUT_UPDATE"
	TypeEndSession   = "END_SESSION"
)

// Wire names of outbound events.
const (
	TypeMetricsUpdate   = "METRICS_UPDATE"
	TypeSessionComplete = "SESSION_COMPLETE"
	TypeError           = "ERROR"
)

// Close codes sent when a connection is refused.
const (
	CloseSessionIDRequired = 4000
	CloseInvalidSession    = 4001
	CloseSessionConnected  = 4002
)

// Close reasons paired with the close codes.
const (
	ReasonSessionIDRequired = "session id required"
	ReasonInvalidSession    = "invalid session"
	ReasonSessionConnected  = "session already connected"
)

// IsRefusal reports whether code is one of the connection refusal close codes.
func IsRefusal(code int) bool {
	return code >= CloseSessionIDRequired && code <= CloseSessionConnected
}

// EventKind is the closed set of inbound events.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventStartSession
	EventInputUpdate
	EventEndSession
)

// ParseEventKind maps a wire type to its EventKind, EventUnknown when unrecognized.
func ParseEventKind(t string) EventKind {
	switch t {
	case TypeStartSession:
		return EventStartSession
	case TypeInputUpdate:
		return EventInputUpdate
	case TypeEndSession:
		return EventEndSession
	default:
		return EventUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case EventStartSession:
		return TypeStartSession
	case EventInputUpdate:
		return TypeInputUpdate
	case EventEndSession:
		return TypeEndSession
	default:
		return "UNKNOWN"
	}
}

// Inbound is the client to server envelope.
type Inbound struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Outbound is the server to client envelope.
type Outbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// InputData is the object form of an INPUT_UPDATE payload.
type InputData struct {
	Input *string `json:"input"`
}

// MetricsUpdate is the METRICS_UPDATE payload.
type MetricsUpdate struct {
	Analysis model.DifferenceAnalysis `json:"analysis"`
	Metrics  model.Metrics            `json:"metrics"`
}

// SessionComplete is the SESSION_COMPLETE payload.
type SessionComplete struct {
	SessionID string                   `json:"sessionId"`
	Metrics   model.Metrics            `json:"metrics"`
	Analysis  model.DifferenceAnalysis `json:"analysis"`
}

// ErrorData is the ERROR payload. Code is an HTTP-equivalent status, or a
// close code when the connection is being refused.
type ErrorData struct {
	Message   string `json:"message"`
	Code      int    `json:"code"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// ParseInput accepts either {"input": "..."} or a bare JSON string.
func ParseInput(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s, nil
		}
	}
	var obj InputData
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj.Input == nil {
		return "", apperr.Validation("INPUT_UPDATE requires an input string")
	}
	return *obj.Input, nil
}
