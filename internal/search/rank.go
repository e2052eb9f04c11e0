package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Weights of the combined ranking score.
const (
	relevanceWeight     = 0.7
	compatibilityWeight = 0.3
)

// SortMode selects how ranked results are ordered.
type SortMode string

const (
	SortScore     SortMode = "score"
	SortQuality   SortMode = "quality"
	SortDate      SortMode = "date"
	SortCreated   SortMode = "created"
	SortUpdated   SortMode = "updated"
	SortDownloads SortMode = "downloads"
)

// ParseSortMode parses a sort mode. Empty means SortScore; "success_rate" is
// accepted as an alias for SortQuality.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortScore, nil
	case "success_rate":
		return SortQuality, nil
	case SortScore, SortQuality, SortDate, SortCreated, SortUpdated, SortDownloads:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
}

// Ranked is a candidate that passed filtering, with its scores.
type Ranked struct {
	directive.Candidate
	Relevance     float64 `json:"relevance"`
	Compatibility float64 `json:"compatibility"`
	Score         float64 `json:"score"`
}

// Combined blends relevance and compatibility into a [0,100] ranking score.
func Combined(relevance, compatibility float64) float64 {
	return relevance*relevanceWeight + compatibility*100*compatibilityWeight
}

// Rank filters and scores one candidate. It reports false when the candidate
// must be excluded: no terms, a missing term, or a failed filter.
func Rank(terms []string, f Filter, c directive.Candidate) (Ranked, bool) {
	if len(terms) == 0 || !MatchesAll(terms, c.Name, c.Description) || !f.Matches(c) {
		return Ranked{}, false
	}
	rel := Relevance(terms, c.Name, c.Description)
	compat := Compatibility(f.TechStack, c.TechStack)
	return Ranked{
		Candidate:     c,
		Relevance:     rel,
		Compatibility: compat,
		Score:         Combined(rel, compat),
	}, true
}

// Sort orders results in place by mode, highest first. Ties fall back to
// tier precedence, then name, so output is deterministic.
func Sort(results []Ranked, mode SortMode) {
	key := sortKey(mode)
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if ka, kb := key(a), key(b); ka != kb {
			return ka > kb
		}
		if ra, rb := a.Tier.Rank(), b.Tier.Rank(); ra != rb {
			return ra < rb
		}
		return a.Name < b.Name
	})
}

// sortKey returns the field accessor for a sort mode. Every accessor maps to
// a float so the comparator stays uniform.
func sortKey(mode SortMode) func(Ranked) float64 {
	switch mode {
	case SortQuality:
		return func(r Ranked) float64 { return r.QualityScore }
	case SortDownloads:
		return func(r Ranked) float64 { return float64(r.DownloadCount) }
	case SortCreated:
		return func(r Ranked) float64 { return timeKey(r.CreatedAt) }
	case SortUpdated:
		return func(r Ranked) float64 { return timeKey(r.UpdatedAt) }
	case SortDate:
		return func(r Ranked) float64 { return timeKey(lastModified(r.Artifact)) }
	default:
		return func(r Ranked) float64 { return r.Score }
	}
}

// timeKey converts t to fractional Unix seconds. Zero times sort last.
func timeKey(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
