package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhowland/camsift/internal/state"
)

var statusClearFailed bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scan progress from the state file",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusClearFailed, "clear-failed", false, "forget failed items so the next scan retries them")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := state.Load(cfg.StateFile)
	processed, pending, failed := store.Counts()

	fmt.Printf("State file: %s\n", cfg.StateFile)
	fmt.Printf("  Processed: %d\n", processed)
	fmt.Printf("  Pending:   %d (interrupted, retried first on next scan)\n", pending)
	fmt.Printf("  Failed:    %d\n", failed)

	if statusClearFailed {
		cleared := store.ClearFailed()
		if cleared == 0 {
			fmt.Println("\nNo failed items to clear.")
			return nil
		}
		if err := store.Save(); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}
		fmt.Printf("\nCleared %d failed items; the next scan will retry them.\n", cleared)
	}
	return nil
}
