package wordlist

import (
	"strings"
	"unicode"
)

// FilterFunc reports whether a word may appear in practice text.
type FilterFunc func(string) bool

// FilterForLang picks the word filter for a language code. English keeps
// lowercase ASCII words; other languages keep any single printable token.
func FilterForLang(lang string) FilterFunc {
	if strings.EqualFold(lang, "en") {
		return isLowerASCII
	}
	return isPrintableToken
}

func isLowerASCII(word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < 'a' || word[i] > 'z' {
			return false
		}
	}
	return true
}

// Practice text is joined with single spaces, so a word must not contain one.
func isPrintableToken(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
