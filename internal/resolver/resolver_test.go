package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/localstore"
	"github.com/kiwi-labs/kiwi/internal/lockfile"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/search"
)

type fakeLocal struct {
	entries map[directive.Tier][]localstore.Entry
}

func (f *fakeLocal) add(tier directive.Tier, name, v, desc string) {
	if f.entries == nil {
		f.entries = make(map[directive.Tier][]localstore.Entry)
	}
	f.entries[tier] = append(f.entries[tier], localstore.Entry{
		Candidate: directive.Candidate{
			Artifact: directive.Artifact{Name: name, Category: "core", Description: desc},
			Version:  v,
			Tier:     tier,
			Path:     "/" + string(tier) + "/" + name + ".md",
		},
		Content:  []byte(string(tier) + " copy of " + name),
		Declared: true,
	})
}

func (f *fakeLocal) List(tier directive.Tier) ([]directive.Candidate, error) {
	var out []directive.Candidate
	for _, e := range f.entries[tier] {
		out = append(out, e.Candidate)
	}
	return out, nil
}

func (f *fakeLocal) Find(tier directive.Tier, name string) (*localstore.Entry, error) {
	for _, e := range f.entries[tier] {
		if e.Name == name {
			return &e, nil
		}
	}
	return nil, &directive.NotFoundError{Name: name, Tiers: []directive.Tier{tier}}
}

type fakeRegistry struct {
	mu        sync.Mutex
	versions  map[string][]directive.Version
	artifacts map[string]directive.Artifact
	searchErr error
	searches  int
	downloads int
}

func (f *fakeRegistry) add(name, desc string, latest string, versions ...string) {
	if f.versions == nil {
		f.versions = make(map[string][]directive.Version)
		f.artifacts = make(map[string]directive.Artifact)
	}
	f.artifacts[name] = directive.Artifact{Name: name, Category: "patterns", Description: desc}
	for _, v := range versions {
		content := "registry " + name + "@" + v
		f.versions[name] = append(f.versions[name], directive.Version{
			Version:     v,
			Content:     content,
			ContentHash: directive.ContentHash([]byte(content)),
			IsLatest:    v == latest,
		})
	}
}

func (f *fakeRegistry) Get(ctx context.Context, name, v string) (*directive.Record, error) {
	if registry.IsDownload(ctx) {
		f.mu.Lock()
		f.downloads++
		f.mu.Unlock()
	}
	for _, ver := range f.versions[name] {
		if ver.Version == v || (v == "" && ver.IsLatest) {
			return &directive.Record{Artifact: f.artifacts[name], Version: ver}, nil
		}
	}
	return nil, &directive.NotFoundError{Name: name}
}

func (f *fakeRegistry) Versions(_ context.Context, name string) ([]registry.VersionInfo, error) {
	vs, ok := f.versions[name]
	if !ok {
		return nil, &directive.NotFoundError{Name: name}
	}
	var out []registry.VersionInfo
	for _, v := range vs {
		out = append(out, registry.VersionInfo{Version: v.Version, ContentHash: v.ContentHash, IsLatest: v.IsLatest})
	}
	return out, nil
}

func (f *fakeRegistry) Search(_ context.Context, q registry.Query) ([]directive.Candidate, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []directive.Candidate
	for name, a := range f.artifacts {
		for _, t := range q.Terms {
			if strings.Contains(name, t) || strings.Contains(a.Description, t) {
				c := directive.Candidate{Artifact: a, Tier: directive.TierRegistry}
				for _, v := range f.versions[name] {
					if v.IsLatest {
						c.Version = v.Version
					}
				}
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRegistry) List(context.Context, []string) ([]registry.Listing, error) {
	return nil, nil
}

func TestResolveProjectShadowsRegistry(t *testing.T) {
	local := &fakeLocal{}
	local.add(directive.TierProject, "x", "0.0.0", "")
	local.add(directive.TierUser, "x", "0.0.0", "")
	reg := &fakeRegistry{}
	reg.add("x", "", "1.0.0", "1.0.0")

	e := New(WithLocal(local), WithRegistry(reg))
	res, err := e.Resolve(context.Background(), "x", "", nil)
	require.NoError(t, err)
	assert.Equal(t, directive.TierProject, res.Tier)
	assert.Equal(t, "project copy of x", res.Content)
	assert.Equal(t, directive.ContentHash([]byte("project copy of x")), res.ContentHash)

	// Order of the allowed list does not change precedence.
	res, err = e.Resolve(context.Background(), "x", "", []directive.Tier{directive.TierRegistry, directive.TierUser})
	require.NoError(t, err)
	assert.Equal(t, directive.TierUser, res.Tier)

	res, err = e.Resolve(context.Background(), "x", "", []directive.Tier{directive.TierRegistry})
	require.NoError(t, err)
	assert.Equal(t, directive.TierRegistry, res.Tier)
	assert.Equal(t, "registry x@1.0.0", res.Content)
}

func TestResolveCaretPicksHighestCompatible(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "2.0.0", "1.1.0", "1.2.0", "1.3.0", "2.0.0")
	e := New(WithRegistry(reg))

	res, err := e.Resolve(context.Background(), "jwt_auth", "^1.2.0", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", res.Version)
	assert.Equal(t, "registry jwt_auth@1.3.0", res.Content)
	assert.Equal(t, "^1.2.0", res.Constraint)

	res, err = e.Resolve(context.Background(), "jwt_auth", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Version)
	assert.Equal(t, "latest", res.Constraint)
	assert.Zero(t, reg.downloads, "resolving must not count downloads")
}

func TestResolveUnsatisfiable(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "1.0.0", "1.0.0")
	e := New(WithRegistry(reg))

	_, err := e.Resolve(context.Background(), "jwt_auth", "^2.0.0", nil)
	var ce *directive.ConstraintUnsatisfiableError
	require.True(t, errors.As(err, &ce), "error = %v", err)
	assert.Equal(t, directive.TierRegistry, ce.Tier)
	assert.Equal(t, []string{"1.0.0"}, ce.Available)
}

func TestResolveWinningTierDecides(t *testing.T) {
	local := &fakeLocal{}
	local.add(directive.TierProject, "x", "0.0.0", "")
	reg := &fakeRegistry{}
	reg.add("x", "", "1.0.0", "1.0.0")
	e := New(WithLocal(local), WithRegistry(reg))

	_, err := e.Resolve(context.Background(), "x", "1.0.0", nil)
	var ce *directive.ConstraintUnsatisfiableError
	require.True(t, errors.As(err, &ce), "error = %v", err)
	assert.Equal(t, directive.TierProject, ce.Tier)
}

func TestResolveNotFound(t *testing.T) {
	e := New(WithLocal(&fakeLocal{}), WithRegistry(&fakeRegistry{}))
	_, err := e.Resolve(context.Background(), "ghost", "", []directive.Tier{directive.TierUser, directive.TierRegistry})
	var nf *directive.NotFoundError
	require.True(t, errors.As(err, &nf), "error = %v", err)
	assert.Equal(t, []directive.Tier{directive.TierUser, directive.TierRegistry}, nf.Tiers)
}

func TestResolveInvalidConstraintFailsFast(t *testing.T) {
	reg := &fakeRegistry{}
	e := New(WithRegistry(reg))
	_, err := e.Resolve(context.Background(), "ghost", "^1.x", nil)
	assert.True(t, errors.Is(err, directive.ErrInvalidSemver), "error = %v", err)
}

func TestResolveIntegrity(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "1.0.0", "1.0.0")
	reg.versions["jwt_auth"][0].ContentHash = "sha256:0000000000000000"
	e := New(WithRegistry(reg))

	_, err := e.Resolve(context.Background(), "jwt_auth", "", nil)
	assert.True(t, errors.Is(err, directive.ErrIntegrity), "error = %v", err)
}

func TestResolvePinned(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "1.3.0", "1.2.0", "1.3.0")
	reg.add("logger", "", "0.2.0", "0.1.0", "0.2.0")

	store := lockfile.NewFileStore(filepath.Join(t.TempDir(), "directives.lock.json"), "")
	lock := lockfile.New("")
	lock.Set("jwt_auth", lockfile.Entry{Version: "1.2.0", Source: "registry"})
	require.NoError(t, store.Write(lock))

	e := New(WithRegistry(reg), WithLockfile(store))
	res, err := e.Resolve(context.Background(), "jwt_auth", "pinned", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", res.Version)

	res, err = e.Resolve(context.Background(), "logger", "pinned", nil)
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", res.Version)
}

func TestResolveSyncedFileTakesLockedVersion(t *testing.T) {
	dir := t.TempDir()
	userDir := filepath.Join(dir, "directives")
	body := "# jwt_auth\n\nValidate bearer tokens.\n"
	require.NoError(t, os.MkdirAll(filepath.Join(userDir, "patterns"), 0o755))
	path := filepath.Join(userDir, "patterns", "jwt_auth.md")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	store := lockfile.NewFileStore(filepath.Join(dir, "directives.lock.json"), "")
	lock := lockfile.New("")
	lock.Set("jwt_auth", lockfile.Entry{Version: "1.2.0", Hash: directive.ContentHash([]byte(body)), Source: "registry"})
	require.NoError(t, store.Write(lock))

	e := New(WithLocal(localstore.New("", userDir)), WithLockfile(store))
	for _, constraint := range []string{"pinned", "1.2.0", "^1.0.0", "latest"} {
		res, err := e.Resolve(context.Background(), "jwt_auth", constraint, nil)
		require.NoError(t, err, constraint)
		assert.Equal(t, "1.2.0", res.Version, constraint)
		assert.Equal(t, directive.TierUser, res.Tier, constraint)
	}

	// Once edited, the file no longer matches the lock and reports the
	// default version.
	require.NoError(t, os.WriteFile(path, []byte(body+"local notes\n"), 0o644))
	res, err := e.Resolve(context.Background(), "jwt_auth", "latest", nil)
	require.NoError(t, err)
	assert.Equal(t, localstore.DefaultVersion, res.Version)

	_, err = e.Resolve(context.Background(), "jwt_auth", "pinned", nil)
	assert.True(t, errors.Is(err, directive.ErrConstraintUnsatisfiable), "error = %v", err)
}

func TestResolveCorruptLockOnlyFailsPinned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.lock.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "1.0.0", "1.0.0")
	e := New(WithRegistry(reg), WithLockfile(lockfile.NewFileStore(path, "")))

	res, err := e.Resolve(context.Background(), "jwt_auth", "latest", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Version)

	_, err = e.Resolve(context.Background(), "jwt_auth", "pinned", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading lockfile")
}

func TestVersionsNewestFirst(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "1.10.0", "1.2.0", "1.10.0", "0.9.0")
	e := New(WithRegistry(reg))

	infos, err := e.Versions(context.Background(), "jwt_auth")
	require.NoError(t, err)
	var got []string
	for _, info := range infos {
		got = append(got, info.Version)
	}
	assert.Equal(t, []string{"1.10.0", "1.2.0", "0.9.0"}, got)
	assert.True(t, infos[0].IsLatest)

	_, err = e.Versions(context.Background(), "ghost")
	assert.True(t, errors.Is(err, directive.ErrNotFound), "error = %v", err)

	_, err = New().Versions(context.Background(), "jwt_auth")
	assert.True(t, errors.Is(err, directive.ErrNotFound), "error = %v", err)

	_, err = e.Versions(context.Background(), "../x")
	assert.Error(t, err)
}

func TestSearchAcrossTiers(t *testing.T) {
	local := &fakeLocal{}
	local.add(directive.TierProject, "jwt_auth", "0.0.0", "")
	local.add(directive.TierUser, "auth_helper", "0.0.0", "token jwt utilities")
	local.add(directive.TierUser, "logger", "0.0.0", "structured logs")
	reg := &fakeRegistry{}
	reg.add("jwt_auth", "", "1.0.0", "1.0.0")
	reg.add("jwt_refresh", "refresh tokens", "1.0.0", "1.0.0")

	e := New(WithLocal(local), WithRegistry(reg))
	results, err := e.Search(context.Background(), SearchRequest{Query: "JWT auth!"})
	require.NoError(t, err)

	var got []string
	for _, r := range results {
		got = append(got, string(r.Tier)+":"+r.Name)
		text := strings.ToLower(r.Name + " " + r.Description)
		assert.Contains(t, text, "jwt")
		assert.Contains(t, text, "auth")
	}
	// Both jwt_auth copies score 100; tier precedence breaks the tie.
	assert.Equal(t, []string{"project:jwt_auth", "registry:jwt_auth", "user:auth_helper"}, got)
	assert.InDelta(t, 100, results[0].Score, 1e-9)
}

func TestSearchScopeAndLimit(t *testing.T) {
	local := &fakeLocal{}
	local.add(directive.TierProject, "jwt_a", "0.0.0", "")
	reg := &fakeRegistry{}
	reg.add("jwt_b", "", "1.0.0", "1.0.0")
	reg.add("jwt_c", "", "1.0.0", "1.0.0")

	e := New(WithLocal(local), WithRegistry(reg), WithDefaultLimit(2))

	results, err := e.Search(context.Background(), SearchRequest{Query: "jwt", Scope: directive.ScopeLocal})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, reg.searches, "local scope must not hit the registry")

	results, err = e.Search(context.Background(), SearchRequest{Query: "jwt"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = e.Search(context.Background(), SearchRequest{Query: "jwt", Limit: 10, Sort: search.SortScore})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchEmptyQuery(t *testing.T) {
	reg := &fakeRegistry{}
	e := New(WithRegistry(reg))
	results, err := e.Search(context.Background(), SearchRequest{Query: "a ! ?"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, reg.searches)
}

func TestSearchRegistryErrorPropagates(t *testing.T) {
	reg := &fakeRegistry{searchErr: &directive.NetworkError{Op: "search", Err: errors.New("boom"), Temporary: true}}
	e := New(WithLocal(&fakeLocal{}), WithRegistry(reg))
	_, err := e.Search(context.Background(), SearchRequest{Query: "jwt"})
	assert.True(t, errors.Is(err, directive.ErrNetwork), "error = %v", err)
}

func TestSearchTechStackFilter(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("jwt_go", "", "1.0.0", "1.0.0")
	reg.add("jwt_node", "", "1.0.0", "1.0.0")
	reg.add("jwt_any", "", "1.0.0", "1.0.0")
	a := reg.artifacts["jwt_go"]
	a.TechStack = []string{"Go"}
	reg.artifacts["jwt_go"] = a
	a = reg.artifacts["jwt_node"]
	a.TechStack = []string{"Node"}
	reg.artifacts["jwt_node"] = a

	e := New(WithRegistry(reg))
	results, err := e.Search(context.Background(), SearchRequest{
		Query:  "jwt",
		Filter: search.Filter{TechStack: []string{"go"}},
	})
	require.NoError(t, err)
	var names []string
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"jwt_go", "jwt_any"}, names)
}
