package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/platform"
)

// Staging holds verified content until it is committed into one local tier.
// Put is safe for concurrent use; Commit and Discard must not race with Put.
type Staging struct {
	store *Store
	tier  directive.Tier
	dir   string

	mu    sync.Mutex
	files map[string]stagedFile
}

type stagedFile struct {
	path     string
	category string
}

// NewStaging creates a fresh staging directory under parent whose commits
// land in tier. parent should be on the same filesystem as the tier so
// commits are plain renames.
func (s *Store) NewStaging(parent string, tier directive.Tier) (*Staging, error) {
	if _, ok := s.roots[tier]; !ok {
		return nil, fmt.Errorf("%s tier is not configured", tier)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging parent %s: %w", parent, err)
	}
	dir, err := os.MkdirTemp(parent, "sync-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	return &Staging{store: s, tier: tier, dir: dir, files: make(map[string]stagedFile)}, nil
}

// Dir returns the staging directory.
func (st *Staging) Dir() string { return st.dir }

// Put stages content for name.
func (st *Staging) Put(name, category string, content []byte) error {
	path := filepath.Join(st.dir, name+fileExt)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}
	st.mu.Lock()
	st.files[name] = stagedFile{path: path, category: category}
	st.mu.Unlock()
	return nil
}

// Staged reports whether name has been staged.
func (st *Staging) Staged(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.files[name]
	return ok
}

// Commit moves the staged file for name into the staging tier and returns
// its final path.
func (st *Staging) Commit(name string) (string, error) {
	st.mu.Lock()
	f, ok := st.files[name]
	st.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%s is not staged", name)
	}

	dest, err := st.store.InstallPath(st.tier, name, f.category)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", name, err)
	}
	if err := platform.Rename(f.path, dest); err != nil {
		return "", fmt.Errorf("installing %s: %w", name, err)
	}

	st.mu.Lock()
	delete(st.files, name)
	st.mu.Unlock()
	return dest, nil
}

// Discard removes the staging directory and everything still in it.
func (st *Staging) Discard() error {
	st.mu.Lock()
	st.files = make(map[string]stagedFile)
	st.mu.Unlock()
	if err := os.RemoveAll(st.dir); err != nil {
		return fmt.Errorf("removing staging directory: %w", err)
	}
	return nil
}
