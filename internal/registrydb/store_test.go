package registrydb

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/registry"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func req(name, category, v, content string) registry.PublishRequest {
	return registry.PublishRequest{
		Artifact: directive.Artifact{
			Name:        name,
			Category:    category,
			Description: "about " + name,
			TechStack:   []string{"Go"},
			Tags:        []string{"security"},
		},
		Version: v,
		Content: content,
	}
}

func latestCount(t *testing.T, db *DB, name string) int {
	t.Helper()
	versions, err := db.Versions(context.Background(), name)
	require.NoError(t, err)
	n := 0
	for _, v := range versions {
		if v.IsLatest {
			n++
		}
	}
	return n
}

func TestPublishFlipsLatest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	res, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "one"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, directive.ContentHash([]byte("one")), res.ContentHash)

	for _, v := range []string{"1.1.0", "2.0.0", "1.2.0"} {
		res, err = db.Publish(ctx, req("jwt_auth", "patterns", v, "body "+v))
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, 1, latestCount(t, db, "jwt_auth"), "after publishing %s", v)

		rec, err := db.Get(ctx, "jwt_auth", "")
		require.NoError(t, err)
		assert.Equal(t, v, rec.Version.Version, "most recent publish is latest")
	}

	versions, err := db.Versions(ctx, "jwt_auth")
	require.NoError(t, err)
	got := make([]string, len(versions))
	for i, v := range versions {
		got[i] = v.Version
	}
	assert.Equal(t, []string{"1.0.0", "1.1.0", "1.2.0", "2.0.0"}, got)
}

func TestPublishRejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "one"))
	require.NoError(t, err)

	_, err = db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "changed"))
	assert.True(t, errors.Is(err, registry.ErrVersionExists), "error = %v", err)

	rec, err := db.Get(ctx, "jwt_auth", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "one", rec.Version.Content)
	assert.True(t, rec.Version.IsLatest)
}

func TestPublishValidates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0", "x"))
	assert.True(t, errors.Is(err, directive.ErrInvalidSemver), "error = %v", err)

	_, err = db.Publish(ctx, req("jwt_auth", "", "1.0.0", "x"))
	assert.True(t, errors.Is(err, registry.ErrInvalidRequest))

	_, err = db.Publish(ctx, req("a/b", "core", "1.0.0", "x"))
	assert.True(t, errors.Is(err, registry.ErrInvalidRequest))
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "one"))
	require.NoError(t, err)

	rec, err := db.Get(ctx, "jwt_auth", "")
	require.NoError(t, err)
	assert.Equal(t, "patterns", rec.Category)
	assert.Equal(t, []string{"Go"}, rec.TechStack)
	assert.Equal(t, []string{"security"}, rec.Tags)
	assert.Zero(t, rec.DownloadCount, "plain reads are not downloads")
	assert.False(t, rec.CreatedAt.IsZero())

	rec, err = db.Get(registry.AsDownload(ctx), "jwt_auth", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.DownloadCount)

	rec, err = db.Get(ctx, "jwt_auth", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.DownloadCount)

	_, err = db.Get(ctx, "jwt_auth", "9.9.9")
	assert.True(t, errors.Is(err, directive.ErrNotFound), "error = %v", err)

	_, err = db.Get(ctx, "missing", "")
	assert.True(t, errors.Is(err, directive.ErrNotFound))

	_, err = db.Versions(ctx, "missing")
	assert.True(t, errors.Is(err, directive.ErrNotFound))
}

func TestSearchAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "a"))
	require.NoError(t, err)
	_, err = db.Publish(ctx, req("jwt_auth", "patterns", "1.1.0", "b"))
	require.NoError(t, err)
	logger := req("logger", "core", "0.1.0", "c")
	logger.Tags = []string{"observability"}
	_, err = db.Publish(ctx, logger)
	require.NoError(t, err)

	results, err := db.Search(ctx, registry.Query{Terms: []string{"jwt", "logger"}})
	require.NoError(t, err)
	require.Len(t, results, 2, "terms are OR-ed")
	for _, r := range results {
		assert.Equal(t, directive.TierRegistry, r.Tier)
		if r.Name == "jwt_auth" {
			assert.Equal(t, "1.1.0", r.Version)
		}
	}

	results, err = db.Search(ctx, registry.Query{Terms: []string{"about"}, Categories: []string{"Core"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "logger", results[0].Name)

	results, err = db.Search(ctx, registry.Query{Terms: []string{"about"}, Tags: []string{"SECURITY"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "jwt_auth", results[0].Name)

	results, err = db.Search(ctx, registry.Query{Terms: []string{"about"}, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	listings, err := db.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []registry.Listing{
		{Name: "jwt_auth", Category: "patterns", LatestVersion: "1.1.0", ContentHash: directive.ContentHash([]byte("b"))},
		{Name: "logger", Category: "core", LatestVersion: "0.1.0", ContentHash: directive.ContentHash([]byte("c"))},
	}, listings)

	listings, err = db.List(ctx, []string{"core"})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "logger", listings[0].Name)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "a"))
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, "jwt_auth"))
	_, err = db.Get(ctx, "jwt_auth", "")
	assert.True(t, errors.Is(err, directive.ErrNotFound))
	assert.True(t, errors.Is(db.Delete(ctx, "jwt_auth"), directive.ErrNotFound))

	// The name is free again and starts a fresh history.
	res, err := db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "again"))
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "registry.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "a"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	rec, err := db.Get(ctx, "jwt_auth", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rec.Version.Version)
}

func TestServedOverHTTP(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	srv := httptest.NewServer(registry.NewServer(db, registry.WithAuthToken("tok")).Handler())
	defer srv.Close()

	c := registry.NewClient(srv.URL, registry.WithToken("tok"))
	_, err := c.Publish(ctx, req("jwt_auth", "patterns", "1.0.0", "one"))
	require.NoError(t, err)
	_, err = c.Publish(ctx, req("jwt_auth", "patterns", "1.1.0", "two"))
	require.NoError(t, err)

	rec, err := c.Get(ctx, "jwt_auth", "")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", rec.Version.Version)
	assert.Equal(t, "two", rec.Version.Content)

	_, err = c.Publish(ctx, req("jwt_auth", "patterns", "1.1.0", "three"))
	assert.True(t, errors.Is(err, registry.ErrVersionExists), "error = %v", err)
}
