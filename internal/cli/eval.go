package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/eval"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	evalOutput      string
	evalCollections []string
)

var evalCmd = &cobra.Command{
	Use:   "eval [golden-file]",
	Short: "Score retrieval against a golden query set",
	Long: `Replays every golden query (YAML or JSON) and reports whether the
expected source and pages were retrieved. With --output the per-query
results are written as CSV for later comparison with "citewise report".`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var reportCmd = &cobra.Command{
	Use:   "report [log.csv]",
	Short: "Summarize a saved evaluation log",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	evalCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "write the evaluation log to this CSV file")
	evalCmd.Flags().StringSliceVarP(&evalCollections, "collection", "c", nil, "collection to search when a query names none (repeatable)")
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(reportCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	queries, err := eval.LoadGolden(args[0])
	if err != nil {
		return err
	}

	return withApp(func(a *app.App) error {
		records, err := a.Evaluator(evalCollections).Evaluate(cmd.Context(), queries)
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}

		rows := eval.Rows(records)
		for _, r := range rows {
			mark := color.RedString("miss")
			if r.HitAtK {
				mark = color.GreenString("hit ")
			}
			cmd.Printf("  %s %-12s coverage=%.2f  retrieved=%s\n", mark, r.QueryID, r.Coverage, strings.Join(r.RetrievedSources, ", "))
		}
		cmd.Println(eval.Aggregate(rows).String())

		if evalOutput == "" {
			return nil
		}
		f, err := os.Create(evalOutput)
		if err != nil {
			return fmt.Errorf("failed to create log: %w", err)
		}
		if err := eval.WriteLog(f, rows); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	rows, err := eval.ReadLog(f)
	if err != nil {
		return err
	}
	cmd.Println(eval.Aggregate(rows).String())
	return nil
}
