// Package userdata resolves the on-disk layout: the per-user home
// (~/.context-kiwi) holding the user directive tier, the sync staging area
// and the update-check cache, and the project layout under <project>/.ai.
package userdata
