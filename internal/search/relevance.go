package search

import "strings"

// Relevance scores for each kind of match.
const (
	scoreExact    = 100.0
	scoreNameAll  = 80.0
	scoreNameSome = 60.0
	scoreDescAll  = 40.0
	scoreDescSome = 20.0
)

// nameSeparators are replaced by spaces before exact-name comparison.
const nameSeparators = "_-"

// Relevance scores a candidate's name and description against parsed query
// terms. The result is in [0,100]. Name matches always dominate description
// matches; an exact name match short-circuits to 100.
func Relevance(terms []string, name, description string) float64 {
	if len(terms) == 0 {
		return 0
	}
	nameLower := strings.ToLower(name)
	descLower := strings.ToLower(description)

	normalized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(nameSeparators, r) {
			return ' '
		}
		return r
	}, nameLower)
	if normalized == strings.Join(terms, " ") || nameLower == strings.Join(terms, "_") {
		return scoreExact
	}

	nameMatches := countMatches(terms, nameLower)
	descMatches := countMatches(terms, descLower)
	n := float64(len(terms))

	score := 0.0
	switch {
	case nameMatches == len(terms):
		score = scoreNameAll
	case nameMatches > 0:
		score = scoreNameSome * float64(nameMatches) / n
	}

	switch {
	case descMatches == len(terms):
		score = max(score, scoreDescAll)
	case descMatches > 0:
		score = max(score, scoreDescSome*float64(descMatches)/n)
	}
	return score
}

// MatchesAll reports whether every term occurs in the name or the
// description (case-insensitive). Candidates failing this are excluded from
// results regardless of their score.
func MatchesAll(terms []string, name, description string) bool {
	haystack := strings.ToLower(name) + "\n" + strings.ToLower(description)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func countMatches(terms []string, text string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}
