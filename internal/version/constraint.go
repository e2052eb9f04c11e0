package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Latest is the canonical spelling of the "use the latest version" constraint.
const Latest = "latest"

// Pinned asks for the version recorded in the lockfile. It is interpreted by
// the resolver, not by this package.
const Pinned = "pinned"

// Kind classifies a constraint.
type Kind int

const (
	KindLatest Kind = iota
	KindExact
	KindCaret
	KindTilde
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindCaret:
		return "caret"
	case KindTilde:
		return "tilde"
	default:
		return "latest"
	}
}

// Constraint is a parsed version constraint.
type Constraint struct {
	Kind Kind
	Raw  string
	base *semver.Version
}

// IsLatest reports whether the constraint selects the flagged latest version.
func (c Constraint) IsLatest() bool { return c.Kind == KindLatest }

// String returns the constraint as written.
func (c Constraint) String() string {
	if c.Kind == KindLatest {
		return Latest
	}
	return c.Raw
}

// ParseConstraint parses a constraint expression. The empty string, "*" and
// "latest" all mean latest.
func ParseConstraint(s string) (Constraint, error) {
	raw := strings.TrimSpace(s)
	switch raw {
	case "", "*", Latest:
		return Constraint{Kind: KindLatest, Raw: raw}, nil
	}

	kind := KindExact
	body := raw
	switch raw[0] {
	case '^':
		kind, body = KindCaret, raw[1:]
	case '~':
		kind, body = KindTilde, raw[1:]
	}

	base, err := Parse(body)
	if err != nil {
		return Constraint{}, &directive.InvalidSemverError{Value: raw, Err: err}
	}
	return Constraint{Kind: kind, Raw: raw, base: base}, nil
}

// Allows reports whether v satisfies the constraint. Latest constraints allow
// every release version. Pre-releases only satisfy an exact constraint that
// names them.
func (c Constraint) Allows(v *semver.Version) bool {
	switch c.Kind {
	case KindExact:
		return v.Equal(c.base)
	case KindLatest:
		return v.Prerelease() == ""
	}

	if v.Prerelease() != "" {
		return false
	}
	if v.Major() != c.base.Major() || v.LessThan(c.base) {
		return false
	}

	switch c.Kind {
	case KindCaret:
		// ^0.x.y is pinned to the minor; ^1+ floats within the major.
		if c.base.Major() == 0 {
			return v.Minor() == c.base.Minor()
		}
		return true
	case KindTilde:
		return v.Minor() == c.base.Minor()
	}
	return false
}
