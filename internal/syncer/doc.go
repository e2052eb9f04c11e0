// Package syncer keeps installed registry directives current.
//
// A sync reads the lockfile, fetches a registry snapshot, plans which pinned
// directives have newer versions, then fetches, verifies and stages the
// new content concurrently. Pinned directives whose file is missing are
// fetched again. Verified entries are committed into the install tier (the
// user tier, or the project tier when the lockfile belongs to a project)
// and recorded in the lockfile with a single atomic write. Failures are
// reported per entry; a cancelled sync leaves the lockfile untouched.
package syncer
