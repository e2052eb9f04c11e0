// Package lockfile reads and writes directives.lock.json, the record of
// which directive versions were installed from the registry and the content
// hash each was verified against. Writes are atomic: readers see either the
// previous lockfile or the new one.
package lockfile
