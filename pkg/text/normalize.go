// Package text holds the ingredient text normalization and tokenization
// shared by training and serving. Both paths must go through these
// functions so the features seen at serve time match the ones fit on.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const minTokenLen = 2

// Normalize returns the canonical form of ingredient text: NFKC, lowercased,
// trimmed, with whitespace runs collapsed to a single space.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	// Caser is stateful, so one per call.
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize splits normalized text into word tokens of at least two word
// characters (letters, digits, underscore). Punctuation such as commas and
// slashes acts as a separator.
func Tokenize(s string) []string {
	var tokens []string
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if tok := s[start:end]; len([]rune(tok)) >= minTokenLen {
			tokens = append(tokens, tok)
		}
		start = -1
	}

	for i, r := range s {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(s))
	return tokens
}

// Tokens is Normalize followed by Tokenize.
func Tokens(s string) []string {
	return Tokenize(Normalize(s))
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
