package cli

import (
	"github.com/spf13/cobra"
)

var installJSON bool

var installCmd = &cobra.Command{
	Use:   "install <name>...",
	Short: "Install directives from the registry",
	Long: `Download the latest registry version of each named directive, verify it,
install it into ~/.context-kiwi/directives and pin it in the lockfile. With
--project, files go to <project>/.ai/directives and the project's lockfile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		report, err := e.syncer().Install(cmd.Context(), args)
		if err != nil {
			return err
		}
		if installJSON {
			if err := printJSON(cmd, report); err != nil {
				return err
			}
		} else if err := printReport(cmd, report); err != nil {
			return err
		}
		return failedError(report)
	},
}

func init() {
	installCmd.Flags().BoolVar(&installJSON, "json", false, "Output the report as JSON")
	rootCmd.AddCommand(installCmd)
}
