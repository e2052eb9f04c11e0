package search

import (
	"strings"
	"unicode"
)

// minTermLength is the shortest term kept. Shorter words are noise.
const minTermLength = 2

// ParseQuery splits a raw query into lowercase terms, trimming surrounding
// punctuation and dropping terms shorter than two characters. An empty result
// means "no results", not an error.
func ParseQuery(query string) []string {
	var terms []string
	for _, word := range strings.Fields(query) {
		word = strings.TrimFunc(word, unicode.IsPunct)
		word = strings.ToLower(strings.TrimSpace(word))
		if len([]rune(word)) < minTermLength {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}
