package directive

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below matches exactly one of these via
// errors.Is.
var (
	ErrNotFound                = errors.New("directive not found")
	ErrConstraintUnsatisfiable = errors.New("no version satisfies constraint")
	ErrInvalidSemver           = errors.New("invalid semantic version")
	ErrIntegrity               = errors.New("content hash mismatch")
	ErrNetwork                 = errors.New("network error")
)

// NotFoundError reports that a name is absent from every allowed tier.
type NotFoundError struct {
	Name  string
	Tiers []Tier
}

func (e *NotFoundError) Error() string {
	if len(e.Tiers) == 0 {
		return fmt.Sprintf("directive %q not found", e.Name)
	}
	names := make([]string, len(e.Tiers))
	for i, t := range e.Tiers {
		names[i] = string(t)
	}
	return fmt.Sprintf("directive %q not found in %s", e.Name, strings.Join(names, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConstraintUnsatisfiableError reports that a directive exists but none of
// its versions satisfies the requested constraint.
type ConstraintUnsatisfiableError struct {
	Name       string
	Constraint string
	Tier       Tier
	Available  []string
}

func (e *ConstraintUnsatisfiableError) Error() string {
	msg := fmt.Sprintf("no version of %q satisfies %q", e.Name, e.Constraint)
	if e.Tier != "" {
		msg += fmt.Sprintf(" in %s tier", e.Tier)
	}
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", "))
	}
	return msg
}

func (e *ConstraintUnsatisfiableError) Is(target error) bool {
	return target == ErrConstraintUnsatisfiable
}

// InvalidSemverError reports a malformed version or constraint string.
type InvalidSemverError struct {
	Value string
	Err   error
}

func (e *InvalidSemverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid semantic version %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid semantic version %q", e.Value)
}

func (e *InvalidSemverError) Is(target error) bool { return target == ErrInvalidSemver }

func (e *InvalidSemverError) Unwrap() error { return e.Err }

// IntegrityError reports fetched content whose hash differs from the hash
// the registry declared for it.
type IntegrityError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %q: expected %s, got %s", e.Name, e.Expected, e.Actual)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// NetworkError wraps a registry I/O failure. Temporary failures are retried
// by callers; permanent ones are not.
type NetworkError struct {
	Op        string
	Err       error
	Temporary bool
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a NetworkError worth retrying.
func IsTemporary(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Temporary
}

// Reason returns a short machine-readable reason for err, used in sync
// reports ("failed:<reason>").
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSemver):
		return "invalid_semver"
	case errors.Is(err, ErrConstraintUnsatisfiable):
		return "unsatisfiable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
