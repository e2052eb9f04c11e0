package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Available is one version a tier offers, with its latest flag.
type Available struct {
	Version  string
	IsLatest bool
}

// Parse parses a version under the strict MAJOR.MINOR.PATCH[-pre][+build]
// grammar. A leading "v" is not accepted.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, &directive.InvalidSemverError{Value: s, Err: err}
	}
	return v, nil
}

// Valid reports whether s is a well-formed semantic version.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compare compares two version strings. It returns -1 if a < b, 0 if they
// have equal precedence, and 1 if a > b.
func Compare(a, b string) (int, error) {
	av, err := Parse(a)
	if err != nil {
		return 0, err
	}
	bv, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return av.Compare(bv), nil
}

// IsNewer reports whether candidate has higher precedence than current.
func IsNewer(current, candidate string) (bool, error) {
	cmp, err := Compare(current, candidate)
	if err != nil {
		return false, err
	}
	return cmp == -1, nil
}

// Resolve selects the version to use for one directive. name is only used in
// error messages. All versions and the constraint are validated up front.
func Resolve(name, constraint string, available []Available) (string, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return "", err
	}
	return ResolveConstraint(name, c, available)
}

// ResolveConstraint is Resolve for an already parsed constraint.
func ResolveConstraint(name string, c Constraint, available []Available) (string, error) {
	parsed := make([]*semver.Version, len(available))
	for i, a := range available {
		v, err := Parse(a.Version)
		if err != nil {
			return "", fmt.Errorf("version %d of %q: %w", i, name, err)
		}
		parsed[i] = v
	}

	if c.IsLatest() {
		if idx, ok := flaggedLatest(available); ok {
			return available[idx].Version, nil
		}
	}

	best := -1
	for i, v := range parsed {
		if !c.Allows(v) {
			continue
		}
		if best == -1 || v.GreaterThan(parsed[best]) {
			best = i
		}
	}
	if best == -1 {
		return "", &directive.ConstraintUnsatisfiableError{
			Name:       name,
			Constraint: c.String(),
			Available:  versionStrings(available),
		}
	}
	return available[best].Version, nil
}

// flaggedLatest returns the index of the single version flagged latest. It
// reports false when zero or several versions carry the flag.
func flaggedLatest(available []Available) (int, bool) {
	idx := -1
	for i, a := range available {
		if !a.IsLatest {
			continue
		}
		if idx != -1 {
			return -1, false
		}
		idx = i
	}
	return idx, idx != -1
}

// Sort orders version strings by ascending precedence. Invalid versions are
// reported, not dropped.
func Sort(versions []string) error {
	parsed := make(map[string]*semver.Version, len(versions))
	for _, s := range versions {
		v, err := Parse(s)
		if err != nil {
			return err
		}
		parsed[s] = v
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return parsed[versions[i]].LessThan(parsed[versions[j]])
	})
	return nil
}

func versionStrings(available []Available) []string {
	out := make([]string, len(available))
	for i, a := range available {
		out[i] = a.Version
	}
	return out
}
