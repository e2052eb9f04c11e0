package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/userdata"
)

var (
	getVersion string
	getTiers   []string
	getOutput  string
	getJSON    bool
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Resolve a directive and print its content",
	Long: `Resolve a directive by name. The project tier shadows the user tier, which
shadows the registry. --version takes a constraint: latest, pinned, 1.2.3,
^1.2.0 or ~1.2.0.

  kiwi get jwt_auth
  kiwi get jwt_auth --version ^1.2.0 --tier registry
  kiwi get jwt_auth --output docs/jwt_auth.md`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVar(&getVersion, "version", "latest", "Version constraint (latest, pinned, exact, ^caret, ~tilde)")
	getCmd.Flags().StringSliceVar(&getTiers, "tier", nil, "Tiers to consult (project, user, registry); default all")
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Write content to this file instead of stdout")
	getCmd.Flags().BoolVar(&getJSON, "json", false, "Output the resolved directive as JSON")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	tiers, err := directive.ParseTiers(getTiers)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}

	res, err := e.engine().Resolve(cmd.Context(), args[0], getVersion, tiers)
	if err != nil {
		return err
	}

	if getOutput != "" {
		if err := os.MkdirAll(filepath.Dir(getOutput), userdata.DirPermNormal); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(getOutput, []byte(res.Content), userdata.FilePermNormal); err != nil {
			return fmt.Errorf("writing %s: %w", getOutput, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s %s (%s) to %s\n", res.Name, res.Version, res.Tier, getOutput)
		return nil
	}
	if getJSON {
		return printJSON(cmd, res)
	}
	fmt.Fprint(cmd.OutOrStdout(), res.Content)
	return nil
}
