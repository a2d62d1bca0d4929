// Package generator builds practice text.
package generator

import (
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/verte-zerg/typestream/internal/model"
)

// Generator produces randomized typing text. It is not safe for concurrent use.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a Generator with a fixed seed.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate selects words uniformly and applies caps/punctuation rules.
func (g *Generator) Generate(words []string, count int, capsPct, punctPct float64, punctSet []rune) []string {
	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		word := words[g.rnd.Intn(len(words))]
		word = applyCaps(g.rnd, word, capsPct)
		word = applyPunct(g.rnd, word, punctPct, punctSet)
		result = append(result, word)
	}
	return result
}

// Source hands out practice texts built from a fixed word list.
type Source struct {
	mu       sync.Mutex
	gen      *Generator
	words    []string
	capsPct  float64
	punctPct float64
	punctSet []rune
}

// NewSource returns a Source drawing from words with the caps and punctuation settings of cfg.
func NewSource(gen *Generator, words []string, cfg model.Config) *Source {
	return &Source{
		gen:      gen,
		words:    words,
		capsPct:  cfg.CapsPct,
		punctPct: cfg.PunctPct,
		punctSet: []rune(cfg.PunctSet),
	}
}

// Text returns count space-separated words.
func (s *Source) Text(count int) string {
	if count <= 0 || len(s.words) == 0 {
		return ""
	}
	s.mu.Lock()
	words := s.gen.Generate(s.words, count, s.capsPct, s.punctPct, s.punctSet)
	s.mu.Unlock()
	return strings.Join(words, " ")
}

func applyCaps(rnd *rand.Rand, word string, capsPct float64) string {
	if capsPct <= 0 || rnd.Float64() > capsPct {
		return word
	}
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func applyPunct(rnd *rand.Rand, word string, punctPct float64, punctSet []rune) string {
	if punctPct <= 0 || len(punctSet) == 0 || rnd.Float64() > punctPct {
		return word
	}
	return word + string(punctSet[rnd.Intn(len(punctSet))])
}
