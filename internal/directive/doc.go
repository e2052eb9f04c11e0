// Package directive defines the data model shared by every layer of kiwi:
// artifacts and their immutable versions, the three source tiers and their
// resolution precedence, search candidates, content hashing, and the typed
// error taxonomy returned by resolve, search and sync.
package directive
