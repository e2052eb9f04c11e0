package directive

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies where a directive was found.
type Tier string

const (
	TierProject  Tier = "project"
	TierUser     Tier = "user"
	TierRegistry Tier = "registry"
)

// Precedence is the resolution order. Earlier tiers shadow later ones.
var Precedence = []Tier{TierProject, TierUser, TierRegistry}

// Rank returns the position of t in Precedence, or len(Precedence) for an
// unknown tier.
func (t Tier) Rank() int {
	for i, p := range Precedence {
		if p == t {
			return i
		}
	}
	return len(Precedence)
}

// IsLocal reports whether the tier lives on the local filesystem.
func (t Tier) IsLocal() bool {
	return t == TierProject || t == TierUser
}

// ParseTier parses a tier name (case-insensitive).
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierProject:
		return TierProject, nil
	case TierUser:
		return TierUser, nil
	case TierRegistry:
		return TierRegistry, nil
	default:
		return "", fmt.Errorf("unknown tier %q (want project, user or registry)", s)
	}
}

// ParseTiers parses a list of tier names. An empty list means all tiers.
func ParseTiers(names []string) ([]Tier, error) {
	if len(names) == 0 {
		return append([]Tier(nil), Precedence...), nil
	}
	tiers := make([]Tier, 0, len(names))
	for _, n := range names {
		t, err := ParseTier(n)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, nil
}

// Scope selects which tiers a search covers.
type Scope string

const (
	ScopeLocal    Scope = "local"
	ScopeRegistry Scope = "registry"
	ScopeAll      Scope = "all"
)

// ParseScope parses a search scope. Empty means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeLocal:
		return ScopeLocal, nil
	case ScopeRegistry:
		return ScopeRegistry, nil
	default:
		return "", fmt.Errorf("unknown source %q (want local, registry or all)", s)
	}
}

// Tiers returns the tiers covered by the scope, in precedence order.
func (s Scope) Tiers() []Tier {
	switch s {
	case ScopeLocal:
		return []Tier{TierProject, TierUser}
	case ScopeRegistry:
		return []Tier{TierRegistry}
	default:
		return append([]Tier(nil), Precedence...)
	}
}

// Artifact is the metadata of a named directive. It is read-only from the
// engine's point of view.
type Artifact struct {
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Subcategory   string    `json:"subcategory,omitempty"`
	Description   string    `json:"description,omitempty"`
	TechStack     []string  `json:"tech_stack,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	IsOfficial    bool      `json:"is_official,omitempty"`
	DownloadCount int64     `json:"download_count,omitempty"`
	QualityScore  float64   `json:"quality_score,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// Version is one immutable published version of an artifact.
type Version struct {
	Version     string    `json:"version"`
	Content     string    `json:"content,omitempty"`
	ContentHash string    `json:"content_hash"`
	Changelog   string    `json:"changelog,omitempty"`
	IsLatest    bool      `json:"is_latest"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Record is an artifact together with one of its versions.
type Record struct {
	Artifact
	Version Version `json:"version"`
}

// Candidate is an artifact found in a specific tier, as returned by search
// sources. Path is set for local tiers only.
type Candidate struct {
	Artifact
	Version string `json:"version"`
	Tier    Tier   `json:"source"`
	Path    string `json:"path,omitempty"`
}

// ValidateName checks that a directive name is usable.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("directive name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("directive name %q must not contain path separators", name)
	}
	return nil
}

// ValidateCategory checks that a category is a non-empty string. Categories
// are open: any non-empty value is accepted.
func ValidateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("category must not be empty")
	}
	return nil
}
