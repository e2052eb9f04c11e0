package search

import "strings"

// Compatibility returns the share of the candidate's tech stack covered by
// the caller's, in [0,1]. A caller with no stack, or a candidate that
// declares none, is neutral (1.0).
func Compatibility(caller, candidate []string) float64 {
	if len(caller) == 0 || len(candidate) == 0 {
		return 1.0
	}
	matched, total := overlap(caller, candidate)
	return float64(matched) / float64(max(total, 1))
}

// Compatible reports whether a candidate passes the tech-stack filter: it
// either declares no stack or shares at least one entry with the caller.
func Compatible(caller, candidate []string) bool {
	if len(caller) == 0 || len(candidate) == 0 {
		return true
	}
	matched, _ := overlap(caller, candidate)
	return matched > 0
}

// overlap returns how many distinct candidate entries appear in caller and
// how many distinct entries the candidate has. Comparison ignores case.
func overlap(caller, candidate []string) (matched, total int) {
	set := make(map[string]struct{}, len(caller))
	for _, c := range caller {
		set[normalizeTag(c)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(candidate))
	for _, c := range candidate {
		key := normalizeTag(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := set[key]; ok {
			matched++
		}
	}
	return matched, len(seen)
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
