package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kiwi-labs/kiwi/internal/platform"
)

const (
	cacheFileName = "update-check.json"
	// DefaultCacheMaxAge is how long an update check stays fresh.
	DefaultCacheMaxAge = 24 * time.Hour
)

// UpdateCache holds the result of the last background update check.
type UpdateCache struct {
	Updates   []string  `json:"updates"`
	CheckedAt time.Time `json:"checked_at"`
}

// LoadCache reads the update cache from dir. It returns nil, nil when no
// check has run yet.
func LoadCache(dir string) (*UpdateCache, error) {
	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading update cache: %w", err)
	}
	var c UpdateCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing update cache: %w", err)
	}
	return &c, nil
}

// SaveCache writes the update cache to dir.
func SaveCache(dir string, c *UpdateCache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling update cache: %w", err)
	}
	if err := platform.WriteFileAtomic(filepath.Join(dir, cacheFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing update cache: %w", err)
	}
	return nil
}

// IsCacheStale reports whether c is missing or older than maxAge at now.
func IsCacheStale(c *UpdateCache, maxAge time.Duration, now time.Time) bool {
	if c == nil {
		return true
	}
	return now.Sub(c.CheckedAt) > maxAge
}

// RefreshCache plans a sync and records the directives with updates.
func (s *Syncer) RefreshCache(ctx context.Context, dir string) (*UpdateCache, error) {
	plan, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}
	c := &UpdateCache{Updates: []string{}, CheckedAt: s.now().UTC()}
	for _, e := range plan.UpdatesAvailable {
		c.Updates = append(c.Updates, e.Name)
	}
	if err := SaveCache(dir, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PrintUpdateBanner tells the user how many directives can be updated.
func PrintUpdateBanner(w io.Writer, c *UpdateCache, cli string) {
	if c == nil || len(c.Updates) == 0 {
		return
	}
	noun := "directives have"
	if len(c.Updates) == 1 {
		noun = "directive has"
	}
	fmt.Fprintf(w, "\n%d %s updates available\n", len(c.Updates), noun)
	fmt.Fprintf(w, "    Run `%s sync` to update\n\n", cli)
}
