package cli

import (
	"fmt"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage collections",
	Long:  `List or delete collections. With no subcommand, lists them.`,
	Args:  cobra.NoArgs,
	RunE:  runCollectionsList,
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionsList,
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a collection and all its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDelete,
}

func init() {
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollectionsList(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app.App) error {
		names, err := a.Store.ListCollections(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		if len(names) == 0 {
			cmd.Println("No collections.")
			return nil
		}
		for _, name := range names {
			cmd.Printf("  %s\n", name)
		}
		return nil
	})
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		if err := a.Store.DeleteCollection(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
		cmd.Printf("Deleted collection %s\n", args[0])
		return nil
	})
}
