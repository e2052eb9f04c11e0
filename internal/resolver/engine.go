package resolver

import (
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/localstore"
	"github.com/kiwi-labs/kiwi/internal/lockfile"
	"github.com/kiwi-labs/kiwi/internal/registry"
)

// DefaultLimit caps search results when the request sets no limit.
const DefaultLimit = 20

var tracer = otel.Tracer("github.com/kiwi-labs/kiwi/internal/resolver")

// LocalSource reads the filesystem tiers.
type LocalSource interface {
	List(tier directive.Tier) ([]directive.Candidate, error)
	// Find returns an error matching directive.ErrNotFound when tier does
	// not hold name.
	Find(tier directive.Tier, name string) (*localstore.Entry, error)
}

// Engine resolves and searches directives across tiers. It is read-only
// and safe for concurrent use.
type Engine struct {
	local        LocalSource
	registry     registry.Store
	lock         lockfile.Store
	log          *zap.Logger
	defaultLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocal sets the project/user tier source.
func WithLocal(l LocalSource) Option {
	return func(e *Engine) { e.local = l }
}

// WithRegistry sets the registry tier.
func WithRegistry(r registry.Store) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLockfile enables the "pinned" constraint.
func WithLockfile(l lockfile.Store) Option {
	return func(e *Engine) { e.lock = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithDefaultLimit overrides DefaultLimit.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultLimit = n
		}
	}
}

// New returns an Engine. Tiers without a configured source are treated as
// empty.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:          zap.NewNop(),
		defaultLimit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
