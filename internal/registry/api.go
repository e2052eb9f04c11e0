package registry

import "github.com/kiwi-labs/kiwi/internal/directive"

// Error codes carried in error response bodies.
const (
	codeNotFound      = "not_found"
	codeInvalidSemver = "invalid_semver"
	codeConflict      = "version_exists"
	codeInvalid       = "invalid_request"
	codeUnauthorized  = "unauthorized"
	codeUnsupported   = "unsupported"
	codeInternal      = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Value string `json:"value,omitempty"`
}

type searchResponse struct {
	Results []directive.Candidate `json:"results"`
}

type versionsResponse struct {
	Name     string        `json:"name"`
	Versions []VersionInfo `json:"versions"`
}

type snapshotResponse struct {
	Directives []Listing `json:"directives"`
}
