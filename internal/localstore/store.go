package localstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/manifest"
)

// DefaultVersion is reported for local files that declare no version.
const DefaultVersion = "0.0.0"

// DefaultCategory is used when neither the file nor its location names one.
const DefaultCategory = "custom"

const fileExt = ".md"

// standardDirs are checked, in order, before falling back to a full walk.
var standardDirs = []string{"core", "custom", ""}

// Entry is a directive file found in a local tier.
type Entry struct {
	directive.Candidate
	Content []byte
	// Declared is false when the file carries no version and Version is
	// DefaultVersion.
	Declared bool
}

// Store reads the project and user tiers.
type Store struct {
	roots map[directive.Tier]string
	log   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped or unreadable files.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store over the given tier roots. An empty projectDir
// disables the project tier.
func New(projectDir, userDir string, opts ...Option) *Store {
	s := &Store{
		roots: make(map[directive.Tier]string, 2),
		log:   zap.NewNop(),
	}
	if projectDir != "" {
		s.roots[directive.TierProject] = projectDir
	}
	if userDir != "" {
		s.roots[directive.TierUser] = userDir
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Root returns the directory backing tier.
func (s *Store) Root(tier directive.Tier) (string, bool) {
	root, ok := s.roots[tier]
	return root, ok
}

// List returns every directive in tier, sorted by name. A missing tier
// directory yields no entries. When two files declare the same name the
// first in lexical path order wins.
func (s *Store) List(tier directive.Tier) ([]directive.Candidate, error) {
	root, ok := s.roots[tier]
	if !ok {
		return nil, nil
	}

	seen := make(map[string]bool)
	var result []directive.Candidate
	err := walkDirectives(root, func(path string) error {
		e, err := s.load(tier, root, path)
		if err != nil {
			s.log.Debug("skipping unreadable directive", zap.String("path", path), zap.Error(err))
			return nil
		}
		if seen[e.Name] {
			s.log.Debug("duplicate directive name in tier",
				zap.String("name", e.Name), zap.String("tier", string(tier)), zap.String("path", path))
			return nil
		}
		seen[e.Name] = true
		result = append(result, e.Candidate)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s directives: %w", tier, err)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Find locates name in tier. It checks core/<name>.md, custom/<name>.md and
// <name>.md first, then walks the whole tier. A file only matches if the
// name it declares is name (or, lacking a declaration, its file stem is).
// The returned error matches directive.ErrNotFound when nothing matches.
func (s *Store) Find(tier directive.Tier, name string) (*Entry, error) {
	if err := directive.ValidateName(name); err != nil {
		return nil, err
	}
	notFound := &directive.NotFoundError{Name: name, Tiers: []directive.Tier{tier}}
	root, ok := s.roots[tier]
	if !ok {
		return nil, notFound
	}

	for _, dir := range standardDirs {
		path := filepath.Join(root, dir, name+fileExt)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if e, err := s.load(tier, root, path); err == nil && e.Name == name {
			return e, nil
		}
	}

	var found *Entry
	errFound := errors.New("found")
	err := walkDirectives(root, func(path string) error {
		e, err := s.load(tier, root, path)
		if err != nil || e.Name != name {
			return nil
		}
		found = e
		return errFound
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, fmt.Errorf("searching %s tier for %q: %w", tier, name, err)
	}
	if found == nil {
		return nil, notFound
	}
	return found, nil
}

// load reads and describes one directive file. Files without structured
// metadata are still directives: their name is the file stem and their
// category comes from the enclosing directory.
func (s *Store) load(tier directive.Tier, root, path string) (*Entry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	doc, err := manifest.Parse(content)
	if err != nil {
		if !errors.Is(err, manifest.ErrNoMetadata) {
			s.log.Debug("malformed directive metadata", zap.String("path", path), zap.Error(err))
		}
		doc = &manifest.Document{}
	}

	rel, _ := filepath.Rel(root, path)
	parts := strings.Split(filepath.ToSlash(rel), "/")

	a := doc.Artifact()
	if a.Name == "" {
		a.Name = strings.TrimSuffix(filepath.Base(path), fileExt)
	}
	if a.Category == "" {
		a.Category = DefaultCategory
		if len(parts) > 1 {
			a.Category = parts[0]
		}
	}
	if a.Subcategory == "" && len(parts) > 2 {
		a.Subcategory = parts[1]
	}
	a.CreatedAt = info.ModTime().UTC()
	a.UpdatedAt = a.CreatedAt

	version := doc.Version
	if version == "" {
		version = DefaultVersion
	}

	return &Entry{
		Candidate: directive.Candidate{
			Artifact: a,
			Version:  version,
			Tier:     tier,
			Path:     path,
		},
		Content:  content,
		Declared: doc.Version != "",
	}, nil
}

// InstallPath returns where name should be written in tier: its current
// location when already installed there, else <root>/<category>/<name>.md.
func (s *Store) InstallPath(tier directive.Tier, name, category string) (string, error) {
	root, ok := s.roots[tier]
	if !ok {
		return "", fmt.Errorf("%s tier is not configured", tier)
	}
	if e, err := s.Find(tier, name); err == nil {
		return e.Path, nil
	}
	if strings.TrimSpace(category) == "" || strings.ContainsAny(category, `/\`) || category == ".." {
		category = DefaultCategory
	}
	return filepath.Join(root, category, name+fileExt), nil
}

// walkDirectives calls fn for every .md file under root in lexical order,
// skipping hidden directories (including the staging area).
func walkDirectives(root string, fn func(path string) error) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return nil // skip inaccessible entries
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) != fileExt {
			return nil
		}
		return fn(path)
	})
	return err
}
