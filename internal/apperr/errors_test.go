package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusByCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad word count"), http.StatusBadRequest},
		{New(CodeInvalidMessageType, "unknown type"), http.StatusBadRequest},
		{New(CodeSessionNotFound, "Session not found"), http.StatusNotFound},
		{New(CodeSessionCompleted, "session already completed"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestIsMatchesByCodeThroughWrapping(t *testing.T) {
	sentinel := New(CodeSessionNotFound, "Session not found")
	err := fmt.Errorf("update abc: %w", New(CodeSessionNotFound, "Session not found"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped error to match sentinel by code")
	}
	if errors.Is(err, New(CodeValidation, "x")) {
		t.Fatalf("did not expect match on different code")
	}
}

func TestPublicMessageHidesInternalDetails(t *testing.T) {
	if got := PublicMessage(errors.New("db exploded")); got != InternalMessage {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := PublicMessage(Internal(errors.New("db exploded"))); got != InternalMessage {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := PublicMessage(Validation("wordCount must be between 10 and 200")); got != "wordCount must be between 10 and 200" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestFromKeepsClassifiedErrors(t *testing.T) {
	orig := New(CodeSessionCompleted, "session already completed")
	if got := From(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Fatalf("expected classified error to be returned as-is")
	}
	got := From(errors.New("raw"))
	if got.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", got.Code)
	}
	if From(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
