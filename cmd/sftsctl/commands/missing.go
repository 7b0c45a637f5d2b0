package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var missingCmd = &cobra.Command{
	Use:   "missing <file-id>",
	Short: "List the chunk IDs still missing for a transfer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		missing, err := newClient().Missing(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch missing chunks: %w", err)
		}

		if len(missing) == 0 {
			fmt.Println("All chunks received.")
			return nil
		}
		fmt.Printf("%d chunks missing:\n", len(missing))
		for _, id := range missing {
			fmt.Println(id)
		}
		return nil
	},
}
