package cli

import (
	"github.com/dgallion1/citewise/internal/api"
	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/logging"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			log, logFile := logging.New(cmd.ErrOrStderr(), logging.Options{
				Level: a.Config.LogLevel,
				File:  a.Config.LogFile,
			})
			defer logFile.Close()
			return api.Run(cmd.Context(), a, log)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
