// Package sentence splits text into sentence-sized chunks for streaming synthesis.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split cuts text after every run of '.', '!' or '?' that is followed by
// whitespace or the end of the text. Pieces are trimmed and empty ones are
// dropped. Text without such a boundary is returned as a single piece.
//
// This is a heuristic: abbreviations like "Dr. Smith" are split too.
func Split(text string) []string {
	var (
		out   []string
		start int
	)

	for i := 0; i < len(text); i++ {
		if !isTerminal(text[i]) {
			continue
		}

		next, _ := utf8.DecodeRuneInString(text[i+1:])
		if i+1 < len(text) && !unicode.IsSpace(next) {
			continue
		}

		out = appendTrimmed(out, text[start:i+1])
		start = i + 1
	}

	return appendTrimmed(out, text[start:])
}

func isTerminal(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}
