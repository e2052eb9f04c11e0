package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kiwi-labs/kiwi/internal/syncer"
)

var verifyJSON bool

var verifyCmd = &cobra.Command{
	Use:   "verify [name]...",
	Short: "Check installed directives against the lockfile hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		results, err := e.syncer().Verify(cmd.Context(), args...)
		if err != nil {
			return err
		}

		if verifyJSON {
			if err := printJSON(cmd, results); err != nil {
				return err
			}
		} else if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Lockfile is empty.")
		} else {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tPATH")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Path)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		bad := 0
		for _, r := range results {
			if r.Status != syncer.VerifyValid {
				bad++
			}
		}
		if bad > 0 {
			return fmt.Errorf("%d of %d directives failed verification", bad, len(results))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(verifyCmd)
}
