package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Verification statuses.
const (
	VerifyValid         = "valid"
	VerifyFileMissing   = "file_missing"
	VerifyHashMismatch  = "hash_mismatch"
	VerifyNotInLockfile = "not_in_lockfile"
)

// VerifyResult is the on-disk state of one locked directive.
type VerifyResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Path     string `json:"path,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Verify checks installed files against the hashes recorded in the
// lockfile. With no names, every locked directive is checked.
func (s *Syncer) Verify(ctx context.Context, names ...string) ([]VerifyResult, error) {
	lock, err := s.lock.Read()
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	if len(names) == 0 {
		names = lock.Names()
	}

	results := make([]VerifyResult, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := lock.Get(name)
		if !ok {
			results = append(results, VerifyResult{Name: name, Status: VerifyNotInLockfile})
			continue
		}
		r := VerifyResult{Name: name, Expected: entry.Hash}
		found, err := s.local.Find(s.tier, name)
		switch {
		case errors.Is(err, directive.ErrNotFound):
			r.Status = VerifyFileMissing
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", name, err)
		default:
			r.Path = found.Path
			r.Actual = directive.ContentHash(found.Content)
			r.Status = VerifyValid
			if r.Actual != entry.Hash {
				r.Status = VerifyHashMismatch
			}
		}
		results = append(results, r)
	}
	return results, nil
}
