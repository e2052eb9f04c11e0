package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/registry"
)

// download is one fetched and verified directive version.
type download struct {
	category string
	version  string
	hash     string
	content  []byte
}

// snapshot fetches the registry listing with the fetch retry policy.
func (s *Syncer) snapshot(ctx context.Context) ([]registry.Listing, error) {
	ctx, span := tracer.Start(ctx, "syncer.snapshot")
	defer span.End()

	var listings []registry.Listing
	err := s.retry(ctx, "snapshot", func(ctx context.Context) error {
		var err error
		listings, err = s.registry.List(ctx, nil)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching registry snapshot: %w", err)
	}
	span.SetAttributes(attribute.Int("snapshot.size", len(listings)))
	return listings, nil
}

// fetch downloads t.Latest and checks it against the hash the registry
// declared, both in the snapshot and on the version itself.
func (s *Syncer) fetch(ctx context.Context, t PlanEntry) (d *download, err error) {
	ctx, span := tracer.Start(ctx, "syncer.fetch")
	span.SetAttributes(attribute.String("directive.name", t.Name), attribute.String("directive.version", t.Latest))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx = registry.AsDownload(ctx)
	var rec *directive.Record
	err = s.retry(ctx, "fetch "+t.Name, func(ctx context.Context) error {
		var err error
		rec, err = s.registry.Get(ctx, t.Name, t.Latest)
		return err
	})
	if err != nil {
		return nil, err
	}

	content := []byte(rec.Version.Content)
	if err := directive.VerifyContent(t.Name, content, rec.Version.ContentHash); err != nil {
		return nil, err
	}
	if t.ContentHash != "" && t.ContentHash != rec.Version.ContentHash {
		return nil, &directive.IntegrityError{Name: t.Name, Expected: t.ContentHash, Actual: rec.Version.ContentHash}
	}

	category := rec.Category
	if category == "" {
		category = t.Category
	}
	return &download{
		category: category,
		version:  rec.Version.Version,
		hash:     rec.Version.ContentHash,
		content:  content,
	}, nil
}

// maxBackoff caps the delay between attempts.
const maxBackoff = 30 * time.Second

// backoffDelay returns the wait before retry number attempt (1-based).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

// retry runs fn up to s.attempts times, each attempt bounded by s.timeout.
// Only temporary network errors are retried; the delay starts at s.backoff
// and doubles up to maxBackoff. The parent context bounds the total time.
func (s *Syncer) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoffDelay(s.backoff, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := fn(attemptCtx)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timedOut {
			err = &directive.NetworkError{Op: op, Err: err, Temporary: true}
		}
		lastErr = err

		if !directive.IsTemporary(err) {
			return err
		}
		s.log.Warn("transient registry failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}
