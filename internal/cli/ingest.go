package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	ingestSource     string
	ingestCollection string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Add documents to the vector store",
	Long: `Extracts, chunks, embeds and stores each file. Each document goes into
a collection named after its file unless --collection is given.
Re-ingesting an unchanged file is a no-op; a changed file replaces the
chunks stored for it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", "", "source name (single file only)")
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "collection to store into")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestSource != "" && len(args) > 1 {
		return errors.New("--source can only be used with a single file")
	}

	reqs := make([]pipeline.IngestRequest, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		reqs = append(reqs, pipeline.IngestRequest{
			Source:     ingestSource,
			Collection: ingestCollection,
			Filename:   filepath.Base(path),
			Data:       data,
		})
	}

	return withApp(func(a *app.App) error {
		results, err := a.Pipeline.IngestMany(cmd.Context(), reqs)
		for i, r := range results {
			switch {
			case r.Err != nil:
				cmd.Printf("  failed    %s: %v\n", args[i], r.Err)
			case r.Report.Skipped:
				cmd.Printf("  unchanged %s -> %s\n", r.Report.Source, r.Report.Collection)
			default:
				cmd.Printf("  ingested  %s -> %s (%d pages, %d chunks)\n",
					r.Report.Source, r.Report.Collection, r.Report.PagesProcessed, r.Report.ChunksWritten)
			}
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return nil
	})
}
