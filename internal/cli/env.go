package cli

import (
	"fmt"
	"path/filepath"

	"github.com/kiwi-labs/kiwi/internal/branding"
	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/localstore"
	"github.com/kiwi-labs/kiwi/internal/lockfile"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/resolver"
	"github.com/kiwi-labs/kiwi/internal/syncer"
	"github.com/kiwi-labs/kiwi/internal/userdata"
)

// env wires the engine components from the loaded settings.
type env struct {
	home       string
	project    string
	stagingDir string
	cacheDir   string
	// installTier receives synced files; it matches the lockfile scope.
	installTier directive.Tier

	local    *localstore.Store
	registry *registry.Client
	lock     *lockfile.FileStore
}

func newEnv() (*env, error) {
	home, err := userdata.GetHomeRoot()
	if err != nil {
		return nil, err
	}
	userDir, err := userdata.GetDirectivesRoot()
	if err != nil {
		return nil, err
	}
	lockPath, err := userdata.GetLockfilePath(settings.Project)
	if err != nil {
		return nil, err
	}
	stagingDir, err := userdata.GetStagingDir()
	if err != nil {
		return nil, err
	}
	cacheDir, err := userdata.GetCacheDir()
	if err != nil {
		return nil, err
	}

	projectDir := ""
	installTier := directive.TierUser
	if settings.Project != "" {
		abs, err := filepath.Abs(settings.Project)
		if err != nil {
			return nil, fmt.Errorf("resolving project path: %w", err)
		}
		projectDir = userdata.ProjectDirectivesDir(abs)
		stagingDir = userdata.ProjectStagingDir(abs)
		installTier = directive.TierProject
	}

	opts := []registry.ClientOption{
		registry.WithUserAgent(branding.CLIName() + "/" + buildVersion),
	}
	if settings.RegistryToken != "" {
		opts = append(opts, registry.WithToken(settings.RegistryToken))
	}

	return &env{
		home:        home,
		project:     settings.Project,
		stagingDir:  stagingDir,
		cacheDir:    cacheDir,
		installTier: installTier,
		local:       localstore.New(projectDir, userDir, localstore.WithLogger(logger)),
		registry:    registry.NewClient(settings.RegistryURL, opts...),
		lock:        lockfile.NewFileStore(lockPath, settings.Project),
	}, nil
}

func (e *env) engine() *resolver.Engine {
	return resolver.New(
		resolver.WithLocal(e.local),
		resolver.WithRegistry(e.registry),
		resolver.WithLockfile(e.lock),
		resolver.WithLogger(logger),
		resolver.WithDefaultLimit(settings.Search.Limit),
	)
}

func (e *env) syncer() *syncer.Syncer {
	return syncer.New(e.registry, e.local, e.lock, e.stagingDir,
		syncer.WithConcurrency(settings.Sync.Concurrency),
		syncer.WithRetry(settings.Sync.Attempts, settings.Sync.Backoff),
		syncer.WithTimeout(settings.Sync.Timeout),
		syncer.WithInstallTier(e.installTier),
		syncer.WithLogger(logger),
	)
}
