// Package analysis classifies the difference between practice text and typed input.
package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/unicode/norm"

	"github.com/verte-zerg/typestream/internal/model"
)

const contextSize = 5

// Analyzer computes DifferenceAnalysis values. It is safe for concurrent use.
type Analyzer struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// New returns an Analyzer.
func New() *Analyzer {
	dmp := diffmatchpatch.New()
	// A minimal script is required; never fall back to a coarse diff.
	dmp.DiffTimeout = 0
	return &Analyzer{dmp: dmp}
}

var defaultAnalyzer = New()

// Analyze classifies input against target using the default Analyzer.
func Analyze(target, input string) model.DifferenceAnalysis {
	return defaultAnalyzer.Analyze(target, input)
}

// Analyze walks a character diff of target and input and classifies every span.
//
// Positions and lengths count code points of the NFC-normalized texts. The
// part of the target the typist has not reached yet is not counted as
// missing.
func (a *Analyzer) Analyze(target, input string) model.DifferenceAnalysis {
	target = norm.NFC.String(target)
	input = norm.NFC.String(input)
	targetRunes := []rune(target)

	diffs := trimUnreached(a.dmp.DiffMain(target, input, false))

	result := model.DifferenceAnalysis{Errors: []model.DiffError{}}
	position := 0
	for _, d := range diffs {
		length := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			result.CorrectCharacters += length
			position += length
		case diffmatchpatch.DiffDelete:
			result.MissingCharacters += length
			result.Errors = append(result.Errors, model.DiffError{
				Type:     model.ErrorMissing,
				Position: position,
				Expected: d.Text,
				Actual:   "",
				Context:  errorContext(targetRunes, position),
			})
		case diffmatchpatch.DiffInsert:
			result.ExtraCharacters += length
			result.IncorrectCharacters += length
			at := extraPosition(targetRunes, position, d.Text)
			result.Errors = append(result.Errors, model.DiffError{
				Type:     model.ErrorExtra,
				Position: at,
				Expected: "",
				Actual:   d.Text,
				Context:  errorContext(targetRunes, at),
			})
			position += length
		}
	}

	result.Accuracy = Accuracy(result)
	result.Context = model.AnalysisContext{
		TotalWords:        countWords(target),
		ErrorDistribution: distribution(result.Errors, len(targetRunes)),
		OverallAccuracy:   result.Accuracy,
	}
	return result
}

// trimUnreached drops target text past the end of the input. After the last
// equal span, deleted runes are substitutions only up to the number of
// inserted runes; the rest was never reached.
func trimUnreached(diffs []diffmatchpatch.Diff) []diffmatchpatch.Diff {
	tail := len(diffs)
	for tail > 0 && diffs[tail-1].Type != diffmatchpatch.DiffEqual {
		tail--
	}
	typed := 0
	for _, d := range diffs[tail:] {
		if d.Type == diffmatchpatch.DiffInsert {
			typed += utf8.RuneCountInString(d.Text)
		}
	}
	out := diffs[:tail:tail]
	for _, d := range diffs[tail:] {
		if d.Type == diffmatchpatch.DiffDelete {
			runes := []rune(d.Text)
			keep := min(len(runes), typed)
			typed -= keep
			if keep == 0 {
				continue
			}
			d.Text = string(runes[:keep])
		}
		out = append(out, d)
	}
	return out
}

// Length counts the characters of s the way Analyze does.
func Length(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// Accuracy is the share of compared target characters reproduced correctly.
func Accuracy(a model.DifferenceAnalysis) float64 {
	expected := a.CorrectCharacters + a.MissingCharacters
	if expected == 0 {
		return 100
	}
	return float64(a.CorrectCharacters) / float64(expected) * 100
}

// extraPosition attributes a doubled keystroke to the letter it repeats.
func extraPosition(target []rune, position int, span string) int {
	if position == 0 || position > len(target) {
		return position
	}
	prev := target[position-1]
	for _, r := range span {
		if r != prev {
			return position
		}
	}
	return position - 1
}

func errorContext(target []rune, position int) model.ErrorContext {
	if position > len(target) {
		position = len(target)
	}
	start := max(0, position-contextSize)
	end := min(len(target), position+contextSize)
	return model.ErrorContext{
		Before:       string(target[start:position]),
		After:        string(target[position:end]),
		WordPosition: wordPosition(target, position),
	}
}

func wordPosition(target []rune, position int) model.WordPosition {
	before := countWords(string(target[:position]))
	total := countWords(string(target))
	return model.WordPosition{
		WordNumber:     before,
		WordPercentage: float64(before) / float64(total) * 100,
	}
}

// countWords counts space-separated fields, including empty ones, so an
// empty string still counts as one word.
func countWords(text string) int {
	return strings.Count(text, " ") + 1
}

func distribution(errors []model.DiffError, textLength int) model.ErrorDistribution {
	var dist model.ErrorDistribution
	first := float64(textLength) * 0.33
	second := float64(textLength) * 0.66
	for _, e := range errors {
		pos := float64(e.Position)
		switch {
		case pos < first:
			dist.Beginning++
		case pos < second:
			dist.Middle++
		default:
			dist.End++
		}
	}
	return dist
}
