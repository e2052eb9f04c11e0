package search

import (
	"strings"
	"time"

	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Filter narrows candidates beyond the query terms. Empty fields do not
// filter. List fields match if any entry matches.
type Filter struct {
	Categories    []string
	Subcategories []string
	Tags          []string
	// TechStack is the caller's context. It both filters (see Compatible)
	// and feeds the compatibility score.
	TechStack []string
	// Since and Until bound the candidate's last-modified time, inclusive.
	Since time.Time
	Until time.Time
}

// Matches reports whether c passes every non-empty criterion.
func (f Filter) Matches(c directive.Candidate) bool {
	if len(f.Categories) > 0 && !containsFold(f.Categories, c.Category) {
		return false
	}
	if len(f.Subcategories) > 0 && (c.Subcategory == "" || !containsFold(f.Subcategories, c.Subcategory)) {
		return false
	}
	if len(f.Tags) > 0 && !anyFold(f.Tags, c.Tags) {
		return false
	}
	if !Compatible(f.TechStack, c.TechStack) {
		return false
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		ts := lastModified(c.Artifact)
		if ts.IsZero() {
			return false
		}
		if !f.Since.IsZero() && ts.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && ts.After(f.Until) {
			return false
		}
	}
	return true
}

// lastModified prefers UpdatedAt and falls back to CreatedAt.
func lastModified(a directive.Artifact) time.Time {
	if !a.UpdatedAt.IsZero() {
		return a.UpdatedAt
	}
	return a.CreatedAt
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func anyFold(want, have []string) bool {
	for _, w := range want {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}
