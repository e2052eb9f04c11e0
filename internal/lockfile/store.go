package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/kiwi-labs/kiwi/internal/platform"
)

// Store persists a lockfile.
type Store interface {
	// Read returns the current lockfile. A missing lockfile is not an
	// error; an empty one is returned.
	Read() (*Lockfile, error)
	// Write replaces the lockfile atomically.
	Write(l *Lockfile) error
}

// UnsupportedVersionError is returned when a lockfile was written by an
// incompatible format version.
type UnsupportedVersionError struct {
	Path    string
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("lockfile %s has unsupported lockfile_version %d (want %d)", e.Path, e.Version, FormatVersion)
}

// FileStore is a Store backed by a JSON file.
type FileStore struct {
	path    string
	project string
	mu      sync.Mutex
}

// NewFileStore returns a store for the lockfile at path. project is recorded
// in lockfiles created from scratch.
func NewFileStore(path, project string) *FileStore {
	return &FileStore{path: path, project: project}
}

// Path returns the lockfile location.
func (s *FileStore) Path() string { return s.path }

// Read loads the lockfile. A missing file yields an empty lockfile; a
// corrupt file or unknown format version is an error.
func (s *FileStore) Read() (*Lockfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(s.project), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", s.path, err)
	}

	var l Lockfile
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", s.path, err)
	}
	if l.LockfileVersion != FormatVersion {
		return nil, &UnsupportedVersionError{Path: s.path, Version: l.LockfileVersion}
	}
	if l.Directives == nil {
		l.Directives = make(map[string]Entry)
	}
	if l.Project == "" {
		l.Project = s.project
	}
	return &l, nil
}

// Write persists l with a single atomic rename.
func (s *FileStore) Write(l *Lockfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := l.Clone()
	out.LockfileVersion = FormatVersion
	if out.Project == "" {
		out.Project = s.project
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lockfile: %w", err)
	}
	data = append(data, '\n')

	if err := platform.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", s.path, err)
	}
	return nil
}
