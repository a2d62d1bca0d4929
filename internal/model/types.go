// Package model defines shared data structures.
package model

import "time"

// Status is the lifecycle state of a practice session.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Session is one practice attempt held by the session store.
type Session struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Input      string     `json:"input"`
	Status     Status     `json:"status"`
	WordCount  int        `json:"wordCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartTime  *time.Time `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
	LastUpdate *time.Time `json:"lastUpdate"`
	LastError  *string    `json:"lastError"`
}

// Started reports whether the session clock is running or has run.
func (s Session) Started() bool {
	return s.StartTime != nil
}

// Completed reports whether the session has been finalized.
func (s Session) Completed() bool {
	return s.Status == StatusCompleted
}

// Config defines practice settings for text generation.
type Config struct {
	Lang     string
	CapsPct  float64
	PunctPct float64
	PunctSet string
}

// Result captures the final figures of a completed session.
type Result struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"sessionId"`
	StartedAt      time.Time `json:"startedAt"`
	EndedAt        time.Time `json:"endedAt"`
	WordCount      int       `json:"wordCount"`
	CorrectChars   int       `json:"correctCharacters"`
	IncorrectChars int       `json:"incorrectCharacters"`
	MissingChars   int       `json:"missingCharacters"`
	ExtraChars     int       `json:"extraCharacters"`
	WPM            float64   `json:"wpm"`
	NetWPM         float64   `json:"netWpm"`
	Accuracy       float64   `json:"accuracy"`
	ErrorRate      float64   `json:"errorRate"`
	DurationMs     int64     `json:"durationMs"`
}

// ResultFilter narrows result listings.
type ResultFilter struct {
	Since *time.Time
	Last  int
}

// ResultSummary aggregates results for reporting.
type ResultSummary struct {
	Count       int     `json:"count"`
	AvgWPM      float64 `json:"avgWpm"`
	BestWPM     float64 `json:"bestWpm"`
	AvgAccuracy float64 `json:"avgAccuracy"`
	LastWPM     float64 `json:"lastWpm"`
}
