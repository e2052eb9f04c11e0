// Package registrydb is a SQLite-backed registry.Store and
// registry.Publisher. Each directive has many immutable versions, exactly
// one of which is flagged latest; a partial unique index enforces that at
// the storage layer.
package registrydb
