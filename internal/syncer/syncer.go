package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/localstore"
	"github.com/kiwi-labs/kiwi/internal/lockfile"
	"github.com/kiwi-labs/kiwi/internal/registry"
)

// Defaults for a Syncer.
const (
	DefaultConcurrency = 4
	DefaultAttempts    = 3
	DefaultBackoff     = 500 * time.Millisecond
	DefaultTimeout     = 30 * time.Second
)

// sourceRegistry is the lockfile source recorded for synced entries.
const sourceRegistry = string(directive.TierRegistry)

var tracer = otel.Tracer("github.com/kiwi-labs/kiwi/internal/syncer")

// Syncer plans and applies registry updates to one local tier, the user
// tier unless WithInstallTier says otherwise.
type Syncer struct {
	registry   registry.Store
	local      *localstore.Store
	lock       lockfile.Store
	stagingDir string
	tier       directive.Tier

	concurrency int
	attempts    int
	backoff     time.Duration
	timeout     time.Duration
	log         *zap.Logger
	now         func() time.Time

	// commitMu serializes commits so two syncs never interleave lockfile
	// writes.
	commitMu sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithConcurrency bounds the number of parallel fetches.
func WithConcurrency(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetry sets the attempts per fetch and the initial backoff, which
// doubles after each failed attempt up to 30s.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Syncer) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// WithTimeout bounds each fetch attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInstallTier sets the local tier synced files are written to and
// verified in. A project-scoped lockfile pairs with the project tier.
func WithInstallTier(tier directive.Tier) Option {
	return func(s *Syncer) {
		if tier.IsLocal() {
			s.tier = tier
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// WithClock sets the clock used for lockfile timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New returns a Syncer that installs into local and stages downloads
// under stagingDir.
func New(reg registry.Store, local *localstore.Store, lock lockfile.Store, stagingDir string, opts ...Option) *Syncer {
	s := &Syncer{
		registry:    reg,
		local:       local,
		lock:        lock,
		stagingDir:  stagingDir,
		tier:        directive.TierUser,
		concurrency: DefaultConcurrency,
		attempts:    DefaultAttempts,
		backoff:     DefaultBackoff,
		timeout:     DefaultTimeout,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan reads the lockfile and the registry snapshot and builds a plan
// without changing anything.
func (s *Syncer) Plan(ctx context.Context) (*Plan, error) {
	lock, err := s.lock.Read()
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return BuildPlan(lock.Pins(), snapshot), nil
}

// PlanAndSync brings every pinned directive up to the registry's latest
// version. With dryRun set it only reports the plan. Per-entry failures are
// reported, not returned; the returned error is reserved for failures that
// abort the whole batch: reading the lockfile, fetching the snapshot,
// cancellation, and writing the lockfile.
func (s *Syncer) PlanAndSync(ctx context.Context, dryRun bool) (*Report, error) {
	lock, err := s.lock.Read()
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	plan := BuildPlan(lock.Pins(), snapshot)

	report := &Report{DryRun: dryRun, NewlyAvailable: plan.NewlyAvailable}
	targets := plan.UpdatesAvailable
	missing := make(map[string]bool)
	for _, e := range plan.UpToDate {
		if !s.installed(e.Name) {
			missing[e.Name] = true
			targets = append(targets, e)
			continue
		}
		report.Results = append(report.Results, Result{Name: e.Name, From: e.Current, To: e.Latest, Status: StatusUpToDate})
	}
	if dryRun {
		for _, e := range targets {
			status := StatusAvailable
			if missing[e.Name] {
				status = StatusMissing
			}
			report.Results = append(report.Results, Result{Name: e.Name, From: e.Current, To: e.Latest, Status: status})
		}
		report.sort()
		return report, nil
	}

	results, err := s.apply(ctx, lock, targets)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if missing[results[i].Name] && results[i].Status == StatusUpdated {
			results[i].Status = StatusRestored
		}
	}
	report.Results = append(report.Results, results...)
	report.sort()
	s.log.Info("sync complete",
		zap.Int("updated", len(report.Updated())),
		zap.Int("restored", len(report.Restored())),
		zap.Int("up_to_date", len(report.UpToDate())),
		zap.Int("failed", len(report.Failed())),
		zap.Int("newly_available", len(plan.NewlyAvailable)))
	return report, nil
}

// Install fetches the named directives at their latest registry version,
// whether or not they are already pinned. Names missing from the registry
// fail with reason not_found.
func (s *Syncer) Install(ctx context.Context, names []string) (*Report, error) {
	for _, name := range names {
		if err := directive.ValidateName(name); err != nil {
			return nil, err
		}
	}
	lock, err := s.lock.Read()
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]registry.Listing, len(snapshot))
	for _, l := range snapshot {
		byName[l.Name] = l
	}

	report := &Report{}
	var targets []PlanEntry
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		l, ok := byName[name]
		if !ok {
			err := &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}}
			report.Results = append(report.Results, failed(Result{Name: name}, err))
			continue
		}
		e := PlanEntry{Name: name, Category: l.Category, Latest: l.LatestVersion, ContentHash: l.ContentHash}
		if pin, ok := lock.Get(name); ok {
			e.Current = pin.Version
			if pin.Version == l.LatestVersion && s.installed(name) {
				report.Results = append(report.Results, Result{Name: name, From: e.Current, To: e.Latest, Status: StatusUpToDate})
				continue
			}
		}
		targets = append(targets, e)
	}

	results, err := s.apply(ctx, lock, targets)
	if err != nil {
		return nil, err
	}
	report.Results = append(report.Results, results...)
	report.sort()
	return report, nil
}

func (s *Syncer) installed(name string) bool {
	_, err := s.local.Find(s.tier, name)
	return err == nil
}

// apply fetches, verifies and stages targets concurrently, then commits
// the successful ones against base and writes the lockfile once.
func (s *Syncer) apply(ctx context.Context, base *lockfile.Lockfile, targets []PlanEntry) ([]Result, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	staging, err := s.local.NewStaging(s.stagingDir, s.tier)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staging.Discard(); err != nil {
			s.log.Warn("cleaning staging directory", zap.Error(err))
		}
	}()

	results := make([]Result, len(targets))
	ready := make([]*download, len(targets))

	// Entries fail independently, so the group has no shared context.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range targets {
		results[i] = Result{Name: t.Name, From: t.Current, To: t.Latest}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = failed(results[i], ctx.Err())
				return nil
			}
			rec, err := s.fetch(ctx, t)
			if err == nil {
				err = staging.Put(t.Name, rec.category, rec.content)
			}
			if err != nil {
				s.log.Warn("sync entry failed", zap.String("name", t.Name), zap.String("version", t.Latest), zap.Error(err))
				results[i] = failed(results[i], err)
				return nil
			}
			ready[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sync cancelled: %w", err)
	}
	return s.commit(base, staging, results, ready)
}

// commit moves staged entries into the install tier and persists the
// lockfile.
func (s *Syncer) commit(base *lockfile.Lockfile, staging *localstore.Staging, results []Result, ready []*download) ([]Result, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	next := base.Clone()
	now := s.now().UTC()
	changed := 0
	for i, f := range ready {
		if f == nil {
			continue
		}
		name := results[i].Name
		path, err := staging.Commit(name)
		if err != nil {
			results[i] = failed(results[i], err)
			continue
		}
		next.Set(name, lockfile.Entry{
			Version:      f.version,
			Hash:         f.hash,
			Source:       sourceRegistry,
			Category:     f.category,
			DownloadedAt: now,
		})
		results[i].To = f.version
		results[i].Status = StatusUpdated
		results[i].Path = path
		changed++
	}
	if changed == 0 {
		return results, nil
	}
	if err := s.lock.Write(next); err != nil {
		return nil, fmt.Errorf("writing lockfile: %w", err)
	}
	return results, nil
}
