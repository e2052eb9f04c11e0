// Package platform provides cross-platform filesystem operations: atomic file
// replacement and permission management. On Windows permission bits are
// ignored and renames over an existing file are retried once after removal.
package platform
