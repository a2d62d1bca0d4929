package tui

import (
	"strings"
	"testing"

	"github.com/verte-zerg/typestream/internal/client"
	"github.com/verte-zerg/typestream/internal/model"
)

func TestRenderFooterFormats(t *testing.T) {
	m := &Model{
		target:    []rune("abcd"),
		input:     []rune("ab"),
		connState: client.StateOpen,
		live:      &model.Metrics{WPM: 55.2, Accuracy: 97.8},
		hasResult: true,
		summary:   model.ResultSummary{Count: 3, LastWPM: 72.4, AvgWPM: 68.1, AvgAccuracy: 96.9},
	}
	out := m.renderFooter()
	if out == "" {
		t.Fatalf("expected footer output")
	}
	if !containsAll(out, []string{"Progress 50%", "Now 55.2 WPM", "97.8%", "Last 72.4 WPM", "All-time 68.1 WPM", "96.9%"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
	if strings.Contains(out, "offline") {
		t.Fatalf("open connection reported offline: %s", out)
	}
}

func TestRenderFooterOffline(t *testing.T) {
	m := &Model{target: []rune("abcd"), connState: client.StateDisconnected}
	out := m.renderFooter()
	if !containsAll(out, []string{"Progress 0%", "offline"}) {
		t.Fatalf("expected offline marker: %s", out)
	}
	if strings.Contains(out, "All-time") {
		t.Fatalf("expected no all-time figures without results: %s", out)
	}
	if (&Model{}).renderFooter() != "" {
		t.Fatalf("expected empty footer without a session")
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
