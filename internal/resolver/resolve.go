package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/localstore"
	"github.com/kiwi-labs/kiwi/internal/lockfile"
	"github.com/kiwi-labs/kiwi/internal/version"
)

// ResolvedArtifact is the outcome of a successful Resolve.
type ResolvedArtifact struct {
	directive.Artifact
	Version     string         `json:"version"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Tier        directive.Tier `json:"source"`
	Path        string         `json:"path,omitempty"`
	Constraint  string         `json:"constraint"`
}

// Resolve finds name under constraint. Tiers are visited in precedence
// order (project, user, registry), restricted to tiers; nil means all. The
// first tier that holds name decides the result, including an
// unsatisfiable constraint: later tiers are not consulted.
//
// The constraint "pinned" selects the lockfile version of name, or latest
// when name is not pinned.
func (e *Engine) Resolve(ctx context.Context, name, constraint string, tiers []directive.Tier) (res *ResolvedArtifact, err error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	span.SetAttributes(attribute.String("directive.name", name), attribute.String("directive.constraint", constraint))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("directive.tier", string(res.Tier)), attribute.String("directive.version", res.Version))
		}
		span.End()
	}()

	if err := directive.ValidateName(name); err != nil {
		return nil, err
	}

	// An unreadable lockfile only fails "pinned".
	lock, err := e.readLock()
	if err != nil {
		if constraint == version.Pinned {
			return nil, err
		}
		e.log.Debug("ignoring unreadable lockfile", zap.Error(err))
	}
	raw := expandPinned(lock, name, constraint)
	c, err := version.ParseConstraint(raw)
	if err != nil {
		return nil, err
	}

	allowed := orderTiers(tiers)
	for _, tier := range allowed {
		var found bool
		if tier.IsLocal() {
			res, found, err = e.resolveLocal(lock, tier, name, c)
		} else {
			res, found, err = e.resolveRegistry(ctx, name, c)
		}
		if err != nil {
			return nil, err
		}
		if found {
			res.Constraint = c.String()
			e.log.Debug("resolved directive",
				zap.String("name", name),
				zap.String("constraint", c.String()),
				zap.String("tier", string(tier)),
				zap.String("version", res.Version))
			return res, nil
		}
	}
	return nil, &directive.NotFoundError{Name: name, Tiers: allowed}
}

func (e *Engine) readLock() (*lockfile.Lockfile, error) {
	if e.lock == nil {
		return nil, nil
	}
	lock, err := e.lock.Read()
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	return lock, nil
}

// expandPinned rewrites "pinned" into the locked version (or latest).
func expandPinned(lock *lockfile.Lockfile, name, constraint string) string {
	if constraint != version.Pinned {
		return constraint
	}
	if lock != nil {
		if entry, ok := lock.Get(name); ok {
			return entry.Version
		}
	}
	return version.Latest
}

// localVersion is the version of a local file. Synced files rarely declare
// one, so an undeclared version is taken from the lockfile entry whose hash
// matches the file.
func localVersion(lock *lockfile.Lockfile, entry *localstore.Entry, hash string) string {
	if entry.Declared || lock == nil {
		return entry.Version
	}
	if pin, ok := lock.Get(entry.Name); ok && pin.Hash == hash && pin.Version != "" {
		return pin.Version
	}
	return entry.Version
}

func (e *Engine) resolveLocal(lock *lockfile.Lockfile, tier directive.Tier, name string, c version.Constraint) (*ResolvedArtifact, bool, error) {
	if e.local == nil {
		return nil, false, nil
	}
	entry, err := e.local.Find(tier, name)
	if errors.Is(err, directive.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up %s in %s tier: %w", name, tier, err)
	}

	hash := directive.ContentHash(entry.Content)
	v := localVersion(lock, entry, hash)

	// A local tier holds exactly one version of a name.
	available := []version.Available{{Version: v, IsLatest: true}}
	if _, err := version.ResolveConstraint(name, c, available); err != nil {
		return nil, true, withTier(err, tier)
	}
	return &ResolvedArtifact{
		Artifact:    entry.Artifact,
		Version:     v,
		Content:     string(entry.Content),
		ContentHash: hash,
		Tier:        tier,
		Path:        entry.Path,
	}, true, nil
}

func (e *Engine) resolveRegistry(ctx context.Context, name string, c version.Constraint) (*ResolvedArtifact, bool, error) {
	if e.registry == nil {
		return nil, false, nil
	}
	infos, err := e.registry.Versions(ctx, name)
	if errors.Is(err, directive.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("listing registry versions of %s: %w", name, err)
	}
	if len(infos) == 0 {
		return nil, false, nil
	}

	available := make([]version.Available, len(infos))
	for i, info := range infos {
		available[i] = version.Available{Version: info.Version, IsLatest: info.IsLatest}
	}
	picked, err := version.ResolveConstraint(name, c, available)
	if err != nil {
		return nil, true, withTier(err, directive.TierRegistry)
	}

	rec, err := e.registry.Get(ctx, name, picked)
	if err != nil {
		return nil, true, fmt.Errorf("fetching %s@%s: %w", name, picked, err)
	}
	content := []byte(rec.Version.Content)
	if err := directive.VerifyContent(name, content, rec.Version.ContentHash); err != nil {
		return nil, true, err
	}
	return &ResolvedArtifact{
		Artifact:    rec.Artifact,
		Version:     rec.Version.Version,
		Content:     rec.Version.Content,
		ContentHash: rec.Version.ContentHash,
		Tier:        directive.TierRegistry,
	}, true, nil
}

// withTier records the deciding tier on an unsatisfiable-constraint error.
func withTier(err error, tier directive.Tier) error {
	var ce *directive.ConstraintUnsatisfiableError
	if errors.As(err, &ce) && ce.Tier == "" {
		ce.Tier = tier
	}
	return err
}

// orderTiers returns the allowed tiers in precedence order without
// duplicates. An empty list allows every tier.
func orderTiers(tiers []directive.Tier) []directive.Tier {
	if len(tiers) == 0 {
		return append([]directive.Tier(nil), directive.Precedence...)
	}
	allowed := make(map[directive.Tier]bool, len(tiers))
	for _, t := range tiers {
		allowed[t] = true
	}
	var out []directive.Tier
	for _, t := range directive.Precedence {
		if allowed[t] {
			out = append(out, t)
		}
	}
	return out
}
