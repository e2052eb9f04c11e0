package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiwi-labs/kiwi/internal/manifest"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/version"
)

var (
	publishVersion      string
	publishChangelog    string
	publishValidateOnly bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Publish a directive file to the registry",
	Long: `Validate a directive file's metadata and publish it as a new version.
Published versions are immutable and the new version becomes latest.

  kiwi publish jwt_auth.md --version 1.3.0 --changelog "Support EdDSA"
  kiwi publish jwt_auth.md --validate-only`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishVersion, "version", "", "Version to publish (defaults to the file's declared version)")
	publishCmd.Flags().StringVar(&publishChangelog, "changelog", "", "Changelog entry for this version")
	publishCmd.Flags().BoolVar(&publishValidateOnly, "validate-only", false, "Only validate the file")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	result, err := manifest.ValidateDocument(doc)
	if err != nil {
		return fmt.Errorf("validating %s: %w", path, err)
	}
	if !result.Valid {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s is invalid:\n", path)
		for _, issue := range result.Issues {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", issue)
		}
		return fmt.Errorf("%s failed validation with %d issues", path, len(result.Issues))
	}

	v, err := publishVersionFor(doc)
	if err != nil {
		return err
	}
	if publishValidateOnly {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%s %s)\n", path, doc.Name, v)
		return nil
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	res, err := e.registry.Publish(cmd.Context(), registry.PublishRequest{
		Artifact:  doc.Artifact(),
		Version:   v,
		Content:   string(data),
		Changelog: publishChangelog,
	})
	if err != nil {
		return fmt.Errorf("publishing %s@%s: %w", doc.Name, v, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s %s (%s)\n", res.Name, res.Version, res.ContentHash)
	return nil
}

// publishVersionFor reconciles --version with the version declared in the
// file. They must agree when both are set.
func publishVersionFor(doc *manifest.Document) (string, error) {
	v := publishVersion
	switch {
	case v == "" && doc.Version == "":
		return "", fmt.Errorf("no version: pass --version or declare one in the file")
	case v == "":
		v = doc.Version
	case doc.Version != "" && doc.Version != v:
		return "", fmt.Errorf("--version %s does not match the file's declared version %s", v, doc.Version)
	}
	if _, err := version.Parse(v); err != nil {
		return "", err
	}
	return v, nil
}
