package stream

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/model"
)

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// report logs err and, if the session still has a connection, sends it as an
// ERROR event. Internal failures also move the session to the error status.
func (h *Handler) report(ctx context.Context, sessionID string, err error) {
	appErr := apperr.From(err)
	status := appErr.Code.HTTPStatus()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("error.status", status),
		attribute.String("error.code", string(appErr.Code)),
	)
	if appErr.Code.Kind() == apperr.KindInternal {
		h.logger.Error("stream failure", "session", sessionID, "error", err)
		h.markErrored(sessionID, err)
	} else {
		h.logger.Warn("stream request rejected", "session", sessionID, "code", appErr.Code, "error", err)
	}

	p, ok := h.registry.get(sessionID)
	if !ok {
		h.logger.Debug("dropping error event, no connection", "session", sessionID)
		return
	}
	data := ErrorData{
		Message:   apperr.PublicMessage(err),
		Code:      status,
		ErrorCode: string(appErr.Code),
	}
	if sendErr := p.send(TypeError, data); sendErr != nil {
		h.logger.Debug("error event not delivered", "session", sessionID, "error", sendErr)
	}
}

func (h *Handler) markErrored(sessionID string, cause error) {
	msg := cause.Error()
	_, err := h.store.Modify(sessionID, func(s *model.Session) error {
		if s.Completed() {
			return nil
		}
		s.Status = model.StatusError
		s.LastError = &msg
		return nil
	})
	if err != nil {
		h.logger.Debug("could not mark session errored", "session", sessionID, "error", err)
	}
}
