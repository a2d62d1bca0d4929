package stream

import (
	"context"
	"errors"
	"time"

	"github.com/verte-zerg/typestream/internal/analysis"
	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/metrics"
	"github.com/verte-zerg/typestream/internal/model"
)

var (
	errSessionCompleted = apperr.New(apperr.CodeSessionCompleted, "session already completed")
	errSessionNoText    = apperr.New(apperr.CodeEmptyText, "session has no practice text")
)

const resultWriteTimeout = 5 * time.Second

func (h *Handler) startSession(sessionID string) error {
	now := h.clock.Now()
	_, err := h.store.Modify(sessionID, func(s *model.Session) error {
		if s.Completed() {
			return errSessionCompleted
		}
		if s.Text == "" {
			return errSessionNoText
		}
		if s.Started() {
			return nil
		}
		s.StartTime = &now
		s.Status = model.StatusActive
		return nil
	})
	return err
}

func (h *Handler) inputUpdate(ctx context.Context, p *peer, sessionID, input string) error {
	now := h.clock.Now()
	startedBefore := false
	sess, err := h.store.Modify(sessionID, func(s *model.Session) error {
		if s.Completed() {
			return errSessionCompleted
		}
		if s.Text == "" {
			return errSessionNoText
		}
		startedBefore = s.Started()
		s.Input = input
		s.LastUpdate = &now
		if !startedBefore {
			s.StartTime = &now
		}
		s.Status = model.StatusActive
		s.LastError = nil
		return nil
	})
	if err != nil {
		return err
	}

	if startedBefore {
		a := h.analyzer.Analyze(sess.Text, sess.Input)
		m, err := metrics.Compute(a, *sess.StartTime, now)
		switch {
		case errors.Is(err, metrics.ErrInvalidInterval):
			// No time has passed yet; the next update reports.
		case err != nil:
			return apperr.Internal(err)
		default:
			if err := p.send(TypeMetricsUpdate, MetricsUpdate{Analysis: a, Metrics: m}); err != nil {
				h.logger.Debug("metrics update not delivered", "session", sessionID, "error", err)
			}
		}
	}

	if analysis.Length(sess.Input) >= analysis.Length(sess.Text) {
		err := h.complete(ctx, p, sessionID)
		if errors.Is(err, errSessionCompleted) {
			return nil
		}
		return err
	}
	return nil
}

func (h *Handler) endSession(ctx context.Context, p *peer, sessionID string) error {
	return h.complete(ctx, p, sessionID)
}

// complete finalizes the session. The completed check and the transition
// happen under the session lock, so SESSION_COMPLETE is sent at most once.
func (h *Handler) complete(ctx context.Context, p *peer, sessionID string) error {
	now := h.clock.Now()
	sess, err := h.store.Modify(sessionID, func(s *model.Session) error {
		if s.Completed() {
			return errSessionCompleted
		}
		if s.Text == "" {
			return errSessionNoText
		}
		if !s.Started() {
			s.StartTime = &now
		}
		s.EndTime = &now
		s.Status = model.StatusCompleted
		s.LastError = nil
		return nil
	})
	if err != nil {
		return err
	}

	a := h.analyzer.Analyze(sess.Text, sess.Input)
	m := metrics.Finalize(a, *sess.StartTime, now)
	// The result is stored before SESSION_COMPLETE goes out.
	h.recordResult(ctx, sess, a, m)
	if err := p.send(TypeSessionComplete, SessionComplete{SessionID: sessionID, Metrics: m, Analysis: a}); err != nil {
		h.logger.Warn("session complete not delivered", "session", sessionID, "error", err)
	}
	h.logger.Info("session completed", "session", sessionID, "wpm", m.WPM, "accuracy", m.Accuracy)
	return nil
}

func (h *Handler) recordResult(ctx context.Context, sess model.Session, a model.DifferenceAnalysis, m model.Metrics) {
	if h.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resultWriteTimeout)
	defer cancel()
	_, err := h.results.InsertResult(ctx, model.Result{
		SessionID:      sess.ID,
		StartedAt:      *sess.StartTime,
		EndedAt:        *sess.EndTime,
		WordCount:      sess.WordCount,
		CorrectChars:   a.CorrectCharacters,
		IncorrectChars: a.IncorrectCharacters,
		MissingChars:   a.MissingCharacters,
		ExtraChars:     a.ExtraCharacters,
		WPM:            m.WPM,
		NetWPM:         m.NetWPM,
		Accuracy:       m.Accuracy,
		ErrorRate:      m.ErrorRate,
		DurationMs:     sess.EndTime.Sub(*sess.StartTime).Milliseconds(),
	})
	if err != nil {
		h.logger.Error("failed to record result", "session", sess.ID, "error", err)
	}
}
