package resolver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/search"
)

// SearchRequest describes one search across tiers.
type SearchRequest struct {
	Query  string
	Scope  directive.Scope
	Filter search.Filter
	Sort   search.SortMode
	// Limit caps the result count; zero means the engine default.
	Limit int
}

// Search ranks candidates from every tier in the request's scope. Tiers are
// queried concurrently; results are concatenated without de-duplication
// (a name may appear once per tier), sorted by the requested mode and
// truncated. A query with no usable terms returns no results.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (results []search.Ranked, err error) {
	ctx, span := tracer.Start(ctx, "resolver.Search")
	span.SetAttributes(attribute.String("search.query", req.Query), attribute.String("search.scope", string(req.Scope)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("search.results", len(results)))
		}
		span.End()
	}()

	terms := search.ParseQuery(req.Query)
	if len(terms) == 0 {
		return nil, nil
	}
	mode := req.Sort
	if mode == "" {
		mode = search.SortScore
	}
	scope := req.Scope
	if scope == "" {
		scope = directive.ScopeAll
	}

	tiers := scope.Tiers()
	perTier := make([][]search.Ranked, len(tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range tiers {
		g.Go(func() error {
			candidates, err := e.candidates(gctx, tier, terms, req.Filter)
			if err != nil {
				return fmt.Errorf("searching %s tier: %w", tier, err)
			}
			for _, c := range candidates {
				c.Tier = tier
				if r, ok := search.Rank(terms, req.Filter, c); ok {
					perTier[i] = append(perTier[i], r)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rs := range perTier {
		results = append(results, rs...)
	}
	search.Sort(results, mode)

	limit := req.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	e.log.Debug("search complete",
		zap.Strings("terms", terms),
		zap.String("scope", string(scope)),
		zap.String("sort", string(mode)),
		zap.Int("results", len(results)))
	return results, nil
}

// candidates fetches the unranked candidates of one tier.
func (e *Engine) candidates(ctx context.Context, tier directive.Tier, terms []string, f search.Filter) ([]directive.Candidate, error) {
	if tier.IsLocal() {
		if e.local == nil {
			return nil, nil
		}
		return e.local.List(tier)
	}
	if e.registry == nil {
		return nil, nil
	}
	return e.registry.Search(ctx, registry.Query{
		Terms:         terms,
		Tags:          f.Tags,
		Categories:    f.Categories,
		Subcategories: f.Subcategories,
		TechStack:     f.TechStack,
	})
}
