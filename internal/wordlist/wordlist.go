// Package wordlist loads word lists from files.
package wordlist

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed words_en.txt
var defaultEnglish string

// Default returns the built-in English word list.
func Default() []string {
	words, err := parse(strings.NewReader(defaultEnglish))
	if err != nil {
		panic(fmt.Sprintf("embedded word list: %v", err))
	}
	return words
}

// LoadWords reads one word per line from the provided file path.
func LoadWords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only word list.
			_ = cerr
		}
	}()
	return parse(file)
}

// Resolve loads path when set, otherwise the built-in list, and keeps the
// words accepted by the language filter.
func Resolve(path, lang string) ([]string, error) {
	words := Default()
	if path != "" {
		loaded, err := LoadWords(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load word list: %w", err)
		}
		words = loaded
	}
	keep := FilterForLang(lang)
	filtered := words[:0:0]
	for _, w := range words {
		if keep(w) {
			filtered = append(filtered, w)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("word list has no words for language %q", lang)
	}
	return filtered, nil
}

func parse(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}
	return words, nil
}
