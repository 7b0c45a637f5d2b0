package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <file-id>",
	Short: "Assemble a fully received transfer into its final file",
	Long: `Ask the coordinator to concatenate the staged chunks of a transfer
into the final file. Every chunk must have been received; use
"sftsctl missing" to check first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := newClient().Assemble(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("assembly failed: %w", err)
		}

		fmt.Printf("Assembled at: %s\n", path)
		return nil
	},
}
