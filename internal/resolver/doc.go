// Package resolver merges the project, user and registry tiers. Resolve
// walks the tiers in precedence order and lets the first tier holding a
// name decide the outcome; Search queries every tier in scope concurrently
// and ranks the combined candidates.
package resolver
