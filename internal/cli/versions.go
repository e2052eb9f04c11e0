package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var versionsJSON bool

var versionsCmd = &cobra.Command{
	Use:   "versions <name>",
	Short: "List every registry version of a directive",
	Long: `List the published versions of a directive, newest first.

  kiwi versions jwt_auth
  kiwi versions jwt_auth --json`,
	Args: cobra.ExactArgs(1),
	RunE: runVersions,
}

func init() {
	versionsCmd.Flags().BoolVar(&versionsJSON, "json", false, "Output versions as JSON")
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	infos, err := e.engine().Versions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if versionsJSON {
		return printJSON(cmd, infos)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VERSION\tLATEST\tHASH\tCREATED\tCHANGELOG")
	for _, v := range infos {
		latest := ""
		if v.IsLatest {
			latest = "*"
		}
		created := "-"
		if !v.CreatedAt.IsZero() {
			created = v.CreatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Version, latest, v.ContentHash, created, truncate(v.Changelog, 40))
	}
	return w.Flush()
}
