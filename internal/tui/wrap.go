package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrongSpace stands in for a space that was typed as something else.
const wrongSpace = '•'

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// textView is one render of the target text against the current input.
type textView struct {
	target  []rune
	input   []rune
	cursor  int
	flagged map[int]bool
}

// styledRunes renders every target rune. Typed runes are compared locally;
// positions the server reported as errors are flagged on top of that.
func (v textView) styledRunes() []styledRune {
	current := wordAt(findWords(v.target), v.cursor)

	out := make([]styledRune, 0, len(v.target))
	for i, target := range v.target {
		displayed := target
		style := pendingStyle
		switch {
		case i < len(v.input):
			switch {
			case target == ' ' && v.input[i] != ' ':
				displayed = wrongSpace
				style = incorrectStyle
			case v.input[i] == target && !v.flagged[i]:
				style = correctStyle
			default:
				style = incorrectStyle
			}
		case target != ' ' && current.contains(i):
			style = currentWordStyle
		}
		if i == v.cursor && i >= len(v.input) {
			style = style.Underline(true)
		}
		out = append(out, styledRune{
			s:       style.Render(string(displayed)),
			width:   runewidth.RuneWidth(displayed),
			isSpace: target == ' ',
		})
	}
	return out
}

type wordRange struct {
	start int
	end   int
}

func (w wordRange) contains(i int) bool {
	return i >= w.start && i < w.end
}

func findWords(target []rune) []wordRange {
	var words []wordRange
	start := -1
	for i, r := range target {
		if r == ' ' {
			if start != -1 {
				words = append(words, wordRange{start: start, end: i})
				start = -1
			}
			continue
		}
		if start == -1 {
			start = i
		}
	}
	if start != -1 {
		words = append(words, wordRange{start: start, end: len(target)})
	}
	return words
}

// wordAt returns the word holding the cursor, or the next word when the
// cursor sits on a space. A negative cursor selects nothing.
func wordAt(words []wordRange, cursor int) wordRange {
	if cursor < 0 || len(words) == 0 {
		return wordRange{start: -1, end: -1}
	}
	for _, w := range words {
		if cursor < w.end {
			return w
		}
	}
	return words[len(words)-1]
}

// wrapLines breaks runes into lines no wider than width, preferring to
// break at spaces. It also reports the line holding rune index at.
func wrapLines(runes []styledRune, width, at int) (lines []string, atLine int) {
	if width <= 0 {
		return []string{renderRunes(runes)}, 0
	}
	lineStart := 0
	lineWidth := 0
	lastSpace := -1
	for i := 0; i < len(runes); i++ {
		if lineWidth+runes[i].width > width && i > lineStart {
			end := i
			next := i
			if lastSpace >= lineStart {
				end = lastSpace
				next = lastSpace + 1
			}
			if at >= lineStart && at < next {
				atLine = len(lines)
			}
			lines = append(lines, renderRunes(runes[lineStart:end]))
			lineStart = next
			lineWidth = 0
			lastSpace = -1
			i = next - 1
			continue
		}
		lineWidth += runes[i].width
		if runes[i].isSpace {
			lastSpace = i
		}
	}
	if at >= lineStart {
		atLine = len(lines)
	}
	lines = append(lines, renderRunes(runes[lineStart:]))
	return lines, atLine
}

// visibleLines keeps at most max lines around the cursor line.
func visibleLines(lines []string, atLine, max int) []string {
	if max <= 0 || len(lines) <= max {
		return lines
	}
	first := atLine - max/2
	if first < 0 {
		first = 0
	}
	if first+max > len(lines) {
		first = len(lines) - max
	}
	return lines[first : first+max]
}

func renderRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}
