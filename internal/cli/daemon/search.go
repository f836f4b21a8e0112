package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/spf13/cobra"
)

// SearchCmd returns the local search command
func SearchCmd() *cobra.Command {
	var (
		limit         int
		minSimilarity float64
		answers       bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the local knowledge snapshot",
		Long:  "Search the saved snapshot with the same ranking the server uses. The snapshot is used whatever its age; no network calls are made.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runSearch(cmd, strings.Join(args, " "), limit, minSimilarity, answers, outputFormat)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default KBSEARCH_MAX_RESULTS)")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", -1, "Minimum similarity for fuzzy matches (default KBSEARCH_MIN_SIMILARITY)")
	cmd.Flags().BoolVarP(&answers, "answers", "a", false, "Include answers in the output")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	cmd.Annotations = envAnnotations([]string{"KBSEARCH_DATA_FILE"}, envSearch)

	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int, minSimilarity float64, answers bool, outputFormat string) error {
	if strings.TrimSpace(query) == "" {
		return domain.ErrEmptyQuery
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if _, err := a.loadLocal(ctx); err != nil {
		return err
	}

	opts := domain.SearchOptions{
		MaxResults:    cfg.MaxResults,
		MinSimilarity: cfg.MinSimilarity,
		IncludeAnswer: answers,
	}
	if limit > 0 {
		opts.MaxResults = limit
	}
	if minSimilarity >= 0 {
		if minSimilarity > 1 {
			return fmt.Errorf("--min-similarity must be between 0 and 1")
		}
		opts.MinSimilarity = minSimilarity
	}

	resp := a.knowledge.Search(ctx, query, opts)
	out := cmd.OutOrStdout()

	if outputFormat == "json" {
		results := make([]map[string]interface{}, 0, len(resp.Results))
		for _, r := range resp.Results {
			item := map[string]interface{}{
				"id":        r.ID,
				"question":  r.Question,
				"score":     r.Score,
				"matchType": string(r.Tier),
				"highlight": r.Highlight,
			}
			if r.Answer != "" {
				item["answer"] = r.Answer
			}
			if r.Category != "" {
				item["category"] = r.Category
			}
			results = append(results, item)
		}
		return printJSON(out, map[string]interface{}{
			"query":   resp.Query,
			"total":   resp.Total,
			"results": results,
		})
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d results (showing %d):\n\n", resp.Total, len(resp.Results))
	for i, r := range resp.Results {
		fmt.Fprintf(out, "%d. [%d] %s\n", i+1, r.ID, r.Question)
		fmt.Fprintf(out, "   %s %.2f\n", r.Tier, r.Score)
		if r.Answer != "" {
			fmt.Fprintf(out, "   %s\n", r.Answer)
		}
	}
	return nil
}
