// Package manifest parses and validates directive documents. A directive
// file is markdown whose metadata lives either in YAML front matter or in a
// <directive name="..." version="..."> XML block. Metadata is validated
// against an embedded JSON Schema before publishing.
package manifest
