package model

// CreateSessionRequest is the body of POST /api/session.
type CreateSessionRequest struct {
	WordCount *int `json:"wordCount,omitempty"`
}

// CreateSessionResponse is returned for a newly created session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
}

// SessionMetricsResponse reports the current figures of a session.
// Metrics is nil until the session has started.
type SessionMetricsResponse struct {
	SessionID string   `json:"sessionId"`
	Status    Status   `json:"status"`
	Metrics   *Metrics `json:"metrics"`
}

// ResultsResponse lists recent results with an all-time summary.
type ResultsResponse struct {
	Results []Result      `json:"results"`
	Summary ResultSummary `json:"summary"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
}
