package generator

import (
	"strings"
	"testing"
	"unicode"

	"github.com/verte-zerg/typestream/internal/model"
)

func TestSourceTextWordCount(t *testing.T) {
	src := NewSource(NewSeeded(1), []string{"alpha", "beta", "gamma"}, model.Config{})
	text := src.Text(12)
	words := strings.Split(text, " ")
	if len(words) != 12 {
		t.Fatalf("expected 12 words, got %d: %q", len(words), text)
	}
	for _, w := range words {
		if w != "alpha" && w != "beta" && w != "gamma" {
			t.Fatalf("unexpected word %q", w)
		}
	}
	if src.Text(0) != "" {
		t.Fatalf("expected empty text for zero count")
	}
}

func TestGenerateCapsAndPunct(t *testing.T) {
	words := NewSeeded(2).Generate([]string{"word"}, 20, 1, 1, []rune{'.'})
	for _, w := range words {
		if !unicode.IsUpper([]rune(w)[0]) || !strings.HasSuffix(w, ".") {
			t.Fatalf("expected capitalized punctuated word, got %q", w)
		}
	}
}
