package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/version"
)

// ErrVersionExists is returned when publishing a version that already
// exists. Published versions are immutable.
var ErrVersionExists = errors.New("version already exists")

// ErrInvalidRequest marks a publish request rejected before storage.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnauthorized is returned when a write is attempted without a valid
// token.
var ErrUnauthorized = errors.New("unauthorized")

// VersionInfo describes one published version without its content.
type VersionInfo struct {
	Version     string    `json:"version"`
	ContentHash string    `json:"content_hash"`
	IsLatest    bool      `json:"is_latest"`
	Changelog   string    `json:"changelog,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Query is a coarse registry search. Matching may be OR-based across terms;
// callers apply the exact AND filter and ranking themselves.
type Query struct {
	Terms         []string `json:"terms,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Subcategories []string `json:"subcategories,omitempty"`
	TechStack     []string `json:"tech_stack,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Listing is one row of a registry snapshot: enough to plan a sync.
type Listing struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	LatestVersion string `json:"latest_version"`
	ContentHash   string `json:"content_hash"`
}

// PublishRequest creates a directive (if new) and adds a version to it.
type PublishRequest struct {
	directive.Artifact
	Version   string `json:"version"`
	Content   string `json:"content"`
	Changelog string `json:"changelog,omitempty"`
}

// PublishResult reports what a publish did.
type PublishResult struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash"`
	Created     bool   `json:"created"`
}

// Store is the read side of a directive registry.
type Store interface {
	// Get returns a directive with one version's content. An empty version
	// selects the latest. Unknown names or versions yield an error matching
	// directive.ErrNotFound.
	Get(ctx context.Context, name, version string) (*directive.Record, error)
	// Versions lists every published version of name.
	Versions(ctx context.Context, name string) ([]VersionInfo, error)
	// Search returns registry candidates for q.
	Search(ctx context.Context, q Query) ([]directive.Candidate, error)
	// List returns a snapshot of every directive's latest version,
	// optionally restricted to categories.
	List(ctx context.Context, categories []string) ([]Listing, error)
}

// Publisher is the write side of a directive registry.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	Delete(ctx context.Context, name string) error
}

// ValidatePublish checks a publish request before it reaches storage.
func ValidatePublish(req PublishRequest) error {
	if err := directive.ValidateName(req.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := directive.ValidateCategory(req.Category); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if _, err := version.Parse(req.Version); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Content == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidRequest)
	}
	return nil
}
