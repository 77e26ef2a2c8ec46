package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/query"
	"github.com/spf13/cobra"
)

var (
	searchTopK        int
	searchCollections []string
	searchJSON        bool
	searchChunks      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long: `Embeds the query, searches the selected collections and prints one
citation per source document with the pages that matched. Without
--collection every collection is searched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of chunks to retrieve (default from DEFAULT_TOP_K)")
	searchCmd.Flags().StringSliceVarP(&searchCollections, "collection", "c", nil, "collection to search (repeatable)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchChunks, "chunks", false, "show the matched chunk text under each citation")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		ctx := cmd.Context()

		topK := searchTopK
		if topK == 0 {
			topK = a.Config.DefaultTopK
		}

		collections := searchCollections
		if len(collections) == 0 {
			all, err := a.Store.ListCollections(ctx)
			if err != nil {
				return fmt.Errorf("failed to list collections: %w", err)
			}
			collections = all
		}

		hits := []query.Hit{}
		if len(collections) > 0 {
			found, err := a.Engine.SearchWithChunks(ctx, args[0], topK, collections)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			hits = append(hits, found...)
		}

		if searchJSON {
			return outputSearchJSON(cmd, hits)
		}
		return outputSearchTable(cmd, hits)
	})
}

func outputSearchJSON(cmd *cobra.Command, hits []query.Hit) error {
	var v any = hits
	if !searchChunks {
		results := make([]domain.QueryResult, len(hits))
		for i, h := range hits {
			results[i] = h.QueryResult
		}
		v = results
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, hits []query.Hit) error {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, h := range hits {
		cmd.Printf("  [%d] %s\n", i+1, query.FormatCitation(h.QueryResult))
		if !searchChunks {
			continue
		}
		for _, c := range h.Chunks {
			cmd.Printf("      %s (%.3f): %s\n", pageLabel(c), c.Score, snippet(c.Text, 200))
		}
	}
	return nil
}

func pageLabel(m domain.Match) string {
	if m.PageStart == m.PageEnd {
		return fmt.Sprintf("p. %d", m.PageStart)
	}
	return fmt.Sprintf("pp. %d-%d", m.PageStart, m.PageEnd)
}

// snippet shortens text to at most n runes.
func snippet(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
