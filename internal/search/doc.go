// Package search turns a free-text query into normalized terms and scores
// directive candidates against them. Scoring is deliberately simple and
// index-free: a relevance score from substring matches on name and
// description, a compatibility ratio from tech-stack overlap, and a
// combined ranking score. Alternate sort modes order by a single metadata
// field instead.
package search
