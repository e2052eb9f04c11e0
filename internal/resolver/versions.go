package resolver

import (
	"context"
	"fmt"
	"slices"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/version"
)

// Versions lists every registry version of name, newest first.
func (e *Engine) Versions(ctx context.Context, name string) ([]registry.VersionInfo, error) {
	if err := directive.ValidateName(name); err != nil {
		return nil, err
	}
	notFound := &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}}
	if e.registry == nil {
		return nil, notFound
	}
	infos, err := e.registry.Versions(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("listing registry versions of %s: %w", name, err)
	}
	if len(infos) == 0 {
		return nil, notFound
	}
	out := slices.Clone(infos)
	slices.SortStableFunc(out, func(a, b registry.VersionInfo) int {
		c, err := version.Compare(b.Version, a.Version)
		if err != nil {
			return 0
		}
		return c
	})
	return out, nil
}
