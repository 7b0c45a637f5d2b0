package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sfts-dev/sfts/pkg/receiver"
)

var verifyChecksum string

var verifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify the integrity of a local file",
	Long: `Compute the SHA-256 checksum of a local file and optionally compare
it against an expected value.

Examples:
  # Print the checksum
  sftsctl verify restored.tar.gz

  # Compare against an expected checksum
  sftsctl verify restored.tar.gz --checksum 9f86d08...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := receiver.Verify(args[0], verifyChecksum)
		if err != nil {
			return err
		}

		fmt.Printf("SHA-256: %s\n", sum)
		if verifyChecksum != "" {
			fmt.Println("Checksum OK.")
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyChecksum, "checksum", "", "Expected SHA-256 checksum")
}
