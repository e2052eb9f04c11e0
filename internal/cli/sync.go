package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/branding"
	"github.com/kiwi-labs/kiwi/internal/syncer"
)

var (
	syncDryRun     bool
	syncIncludeNew bool
	syncJSON       bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update pinned registry directives to their latest versions",
	Long: `Compare the lockfile with the registry and install every newer version.
Downloads run concurrently and are verified against the registry's content
hash before anything is installed. Pinned directives whose file has gone
missing are downloaded again and reported as restored. The lockfile is
rewritten once, and only when at least one directive was installed.

  kiwi sync --dry-run       # show the plan
  kiwi sync --include-new   # also install directives not yet in the lockfile`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show what would change without installing")
	syncCmd.Flags().BoolVar(&syncIncludeNew, "include-new", false, "Also install directives that are not in the lockfile yet")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Output the report as JSON")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	s := e.syncer()

	report, err := s.PlanAndSync(cmd.Context(), syncDryRun)
	if err != nil {
		return err
	}
	if syncIncludeNew && !syncDryRun && len(report.NewlyAvailable) > 0 {
		names := make([]string, len(report.NewlyAvailable))
		for i, n := range report.NewlyAvailable {
			names[i] = n.Name
		}
		installed, err := s.Install(cmd.Context(), names)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, installed.Results...)
		report.NewlyAvailable = nil
	}

	if !syncDryRun {
		cache := &syncer.UpdateCache{Updates: report.Failed(), CheckedAt: time.Now().UTC()}
		if cache.Updates == nil {
			cache.Updates = []string{}
		}
		if err := syncer.SaveCache(e.cacheDir, cache); err != nil {
			logger.Debug("saving update cache", zap.Error(err))
		}
	}

	if syncJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		if err := printReport(cmd, report); err != nil {
			return err
		}
		if len(report.NewlyAvailable) > 0 {
			names := make([]string, len(report.NewlyAvailable))
			for i, n := range report.NewlyAvailable {
				names[i] = n.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d new directives available: %s\n", len(names), strings.Join(names, ", "))
			fmt.Fprintf(cmd.OutOrStdout(), "Run `%s install <name>` or `%s sync --include-new` to install them.\n", branding.CLIName(), branding.CLIName())
		}
	}
	return failedError(report)
}

func printReport(cmd *cobra.Command, report *syncer.Report) error {
	if len(report.Results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to sync.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tFROM\tTO\tSTATUS")
	for _, r := range report.Results {
		from := r.From
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, from, r.To, r.Status)
	}
	return w.Flush()
}

// failedError turns per-entry failures into a non-zero exit.
func failedError(report *syncer.Report) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d directives failed: %s", len(failed), len(report.Results), strings.Join(failed, ", "))
}
