package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/verte-zerg/typestream/internal/analysis"
	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/metrics"
	"github.com/verte-zerg/typestream/internal/model"
)

const (
	defaultResultsLimit = 10
	maxResultsLimit     = 100
	maxRequestBytes     = 4 * 1024
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, apperr.Wrap(apperr.CodeValidation, "Invalid request body", err))
		return
	}

	count := s.cfg.DefaultWords
	if req.WordCount != nil {
		count = *req.WordCount
	}
	if count < s.cfg.MinWords || count > s.cfg.MaxWords {
		s.writeError(w, r, apperr.Validation(fmt.Sprintf("wordCount must be between %d and %d", s.cfg.MinWords, s.cfg.MaxWords)))
		return
	}

	text := s.text.Text(count)
	if text == "" {
		s.writeError(w, r, apperr.Internal(errors.New("text source returned no text")))
		return
	}
	sess := s.sessions.CreateWithText(text, count)
	s.logger.Debug("session created", "session_id", sess.ID, "word_count", count)

	s.writeJSON(w, http.StatusOK, model.CreateSessionResponse{
		SessionID: sess.ID,
		Text:      sess.Text,
		WordCount: sess.WordCount,
	})
}

func (s *Server) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := model.SessionMetricsResponse{SessionID: sess.ID, Status: sess.Status}
	if sess.StartTime != nil {
		end := s.clock.Now()
		if sess.EndTime != nil {
			end = *sess.EndTime
		}
		m := metrics.Finalize(analysis.Analyze(sess.Text, sess.Input), *sess.StartTime, end)
		resp.Metrics = &m
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.writeError(w, r, apperr.New(apperr.CodeNotFound, "Results are not recorded"))
		return
	}

	limit := defaultResultsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxResultsLimit {
			s.writeError(w, r, apperr.Validation(fmt.Sprintf("limit must be between 1 and %d", maxResultsLimit)))
			return
		}
		limit = n
	}

	ctx := r.Context()
	results, err := s.results.ListResults(ctx, model.ResultFilter{Last: limit})
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to list results: %w", err))
		return
	}
	summary, err := s.results.Summary(ctx)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to summarize results: %w", err))
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	s.writeJSON(w, http.StatusOK, model.ResultsResponse{Results: results, Summary: summary})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, model.HealthResponse{Status: "healthy"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// writeError maps err to its status and public message. Internal details are
// logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", appErr.Code, "error", err)
	}
	s.writeJSON(w, status, model.ErrorResponse{
		StatusCode: status,
		ErrorCode:  string(appErr.Code),
		Message:    apperr.PublicMessage(appErr),
	})
}
