package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/resolver"
	"github.com/kiwi-labs/kiwi/internal/search"
)

var (
	searchSource      string
	searchTechStack   []string
	searchTags        []string
	searchCategories  []string
	searchSubcategory []string
	searchSort        string
	searchLimit       int
	searchSince       string
	searchUntil       string
	searchJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search directives across the project, user and registry tiers",
	Long: `Search directives by name and description. Every query word must appear in
the name or description. Results are ranked by relevance and by how well the
directive's tech stack matches --tech-stack.

  kiwi search jwt auth
  kiwi search "api client" --source registry --tech-stack go --sort downloads`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchSource, "source", "all", "Tiers to search (local, registry, all)")
	searchCmd.Flags().StringSliceVar(&searchTechStack, "tech-stack", nil, "Your tech stack (comma-separated); filters and ranks results")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "Filter by tags (comma-separated, matches any)")
	searchCmd.Flags().StringSliceVar(&searchCategories, "category", nil, "Filter by category (comma-separated, matches any)")
	searchCmd.Flags().StringSliceVar(&searchSubcategory, "subcategory", nil, "Filter by subcategory (comma-separated, matches any)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "score", "Sort by score, quality, date, created, updated or downloads")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of results (default from search.limit)")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "Only directives modified on or after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchUntil, "until", "", "Only directives modified on or before this date (YYYY-MM-DD)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	scope, err := directive.ParseScope(searchSource)
	if err != nil {
		return err
	}
	mode, err := search.ParseSortMode(searchSort)
	if err != nil {
		return err
	}
	since, err := parseDate(searchSince, false)
	if err != nil {
		return fmt.Errorf("parsing --since: %w", err)
	}
	until, err := parseDate(searchUntil, true)
	if err != nil {
		return fmt.Errorf("parsing --until: %w", err)
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")
	results, err := e.engine().Search(cmd.Context(), resolver.SearchRequest{
		Query: query,
		Scope: scope,
		Filter: search.Filter{
			Categories:    searchCategories,
			Subcategories: searchSubcategory,
			Tags:          searchTags,
			TechStack:     searchTechStack,
			Since:         since,
			Until:         until,
		},
		Sort:  mode,
		Limit: searchLimit,
	})
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if searchJSON {
		if results == nil {
			results = []search.Ranked{}
		}
		return printJSON(cmd, results)
	}
	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No directives found matching %q\n", query)
		return nil
	}
	return printSearchTable(cmd, results)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func printSearchTable(cmd *cobra.Command, results []search.Ranked) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tNAME\tVERSION\tSCORE\tDESCRIPTION")
	for _, r := range results {
		version := r.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\n", r.Tier, r.Name, version, r.Score, truncate(r.Description, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
