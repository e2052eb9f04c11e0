package lockfile

import (
	"maps"
	"slices"
	"time"
)

// FormatVersion is the only lockfile_version this package reads and writes.
const FormatVersion = 1

// Entry records one installed directive.
type Entry struct {
	Version      string    `json:"version"`
	Hash         string    `json:"hash"`
	Source       string    `json:"source"`
	Category     string    `json:"category,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Lockfile is the full lockfile document for one project (or for the user
// home when no project is set).
type Lockfile struct {
	LockfileVersion int              `json:"lockfile_version"`
	Project         string           `json:"project,omitempty"`
	Directives      map[string]Entry `json:"directives"`
}

// New returns an empty lockfile bound to project.
func New(project string) *Lockfile {
	return &Lockfile{
		LockfileVersion: FormatVersion,
		Project:         project,
		Directives:      make(map[string]Entry),
	}
}

// Get returns the entry for name.
func (l *Lockfile) Get(name string) (Entry, bool) {
	e, ok := l.Directives[name]
	return e, ok
}

// Set records or replaces the entry for name.
func (l *Lockfile) Set(name string, e Entry) {
	if l.Directives == nil {
		l.Directives = make(map[string]Entry)
	}
	l.Directives[name] = e
}

// Remove deletes the entry for name, reporting whether it existed.
func (l *Lockfile) Remove(name string) bool {
	if _, ok := l.Directives[name]; !ok {
		return false
	}
	delete(l.Directives, name)
	return true
}

// Names returns the pinned directive names in sorted order.
func (l *Lockfile) Names() []string {
	return slices.Sorted(maps.Keys(l.Directives))
}

// Pins returns name → pinned version.
func (l *Lockfile) Pins() map[string]string {
	pins := make(map[string]string, len(l.Directives))
	for name, e := range l.Directives {
		pins[name] = e.Version
	}
	return pins
}

// Clone returns a deep copy that can be mutated without affecting l.
func (l *Lockfile) Clone() *Lockfile {
	c := *l
	c.Directives = maps.Clone(l.Directives)
	if c.Directives == nil {
		c.Directives = make(map[string]Entry)
	}
	return &c
}
