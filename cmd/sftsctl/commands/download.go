package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/pkg/receiver"
)

var downloadOutput string

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download an assembled file",
	Long: `Download an assembled file from the coordinator.

The SHA-256 of the stream is computed while downloading and the byte
count is checked against the manifest; a mismatch removes the partial
file.

Examples:
  # Download next to the current directory under its original name
  sftsctl download 4f7c21aa-...

  # Download into a directory or to an explicit path
  sftsctl download 4f7c21aa-... -o /var/backups/
  sftsctl download 4f7c21aa-... -o restored.tar.gz`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	result, err := receiver.New(newClient()).Download(cmd.Context(), args[0], downloadOutput)
	if err != nil {
		return err
	}

	fmt.Printf("Downloaded %s (%s)\n", result.Path, bytesize.ByteSize(result.Size))
	fmt.Printf("  SHA-256: %s\n", result.Checksum)
	return nil
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Output path or directory (default: original filename)")
}
