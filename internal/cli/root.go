package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/branding"
	"github.com/kiwi-labs/kiwi/internal/config"
	"github.com/kiwi-labs/kiwi/internal/logging"
	"github.com/kiwi-labs/kiwi/internal/syncer"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	verbose      bool
	projectFlag  string
	registryFlag string
	settings     config.Settings
	logger       = zap.NewNop()
)

// Commands that skip the update banner: they either sync themselves or do
// not touch directives.
var noBanner = map[string]bool{
	"sync":       true,
	"serve":      true,
	"version":    true,
	"config":     true,
	"help":       true,
	"completion": true,
}

// bannerRefreshTimeout bounds the background update check.
const bannerRefreshTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` resolves, searches and syncs versioned directives across the
project tier (.ai/directives), the user tier (~/.context-kiwi/directives) and a
remote registry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		if projectFlag != "" {
			s.Project = projectFlag
		}
		if registryFlag != "" {
			s.RegistryURL = registryFlag
		}
		settings = s

		level := s.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return err
		}

		if s.UpdateCheck && !noBanner[topLevel(cmd).Name()] {
			checkAndPrintBanner(cmd)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project root whose .ai/directives form the project tier")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "", "Registry base URL")
}

// checkAndPrintBanner prints the cached "updates available" notice. It
// never blocks: a stale cache is refreshed in the background for the next
// invocation.
func checkAndPrintBanner(cmd *cobra.Command) {
	e, err := newEnv()
	if err != nil {
		return
	}
	cache, err := syncer.LoadCache(e.cacheDir)
	if err != nil {
		return
	}
	syncer.PrintUpdateBanner(cmd.ErrOrStderr(), cache, branding.CLIName())

	if syncer.IsCacheStale(cache, syncer.DefaultCacheMaxAge, time.Now()) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), bannerRefreshTimeout)
			defer cancel()
			if _, err := e.syncer().RefreshCache(ctx, e.cacheDir); err != nil {
				logger.Debug("refreshing update cache", zap.Error(err))
			}
		}()
	}
}

// topLevel returns the direct child of the root that cmd belongs to.
func topLevel(cmd *cobra.Command) *cobra.Command {
	for cmd.HasParent() && cmd.Parent().HasParent() {
		cmd = cmd.Parent()
	}
	return cmd
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
