// Package cli implements the citewise command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/config"
	"github.com/spf13/cobra"
)

// openApp builds the components a command needs. Tests replace it.
var openApp = func() (*app.App, error) {
	return app.New(config.Load())
}

var rootCmd = &cobra.Command{
	Use:   "citewise",
	Short: "Page-cited search over PDF documents",
	Long: `citewise ingests PDFs into a vector store and answers questions with
citations naming the source document and pages. Settings come from the
environment or a .env file in the working directory.`,
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// withApp opens the app for the duration of fn.
func withApp(fn func(a *app.App) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
