package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kiwi-labs/kiwi/internal/directive"
)

var (
	listTier string
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List directives installed in the project and user tiers",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listTier, "tier", "", "Only list one tier (project or user)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	tiers := []directive.Tier{directive.TierProject, directive.TierUser}
	if listTier != "" {
		t, err := directive.ParseTier(listTier)
		if err != nil {
			return err
		}
		if !t.IsLocal() {
			return fmt.Errorf("--tier must be project or user, got %q", listTier)
		}
		tiers = []directive.Tier{t}
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	entries := []directive.Candidate{}
	for _, t := range tiers {
		found, err := e.local.List(t)
		if err != nil {
			return fmt.Errorf("listing %s tier: %w", t, err)
		}
		entries = append(entries, found...)
	}

	if listJSON {
		return printJSON(cmd, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No directives installed yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIER\tCATEGORY\tNAME\tVERSION\tPATH")
	for _, c := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Tier, c.Category, c.Name, c.Version, c.Path)
	}
	return w.Flush()
}
