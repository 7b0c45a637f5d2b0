package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/internal/cli/output"
	"github.com/sfts-dev/sfts/pkg/apiclient"
	"github.com/sfts-dev/sfts/pkg/receiver"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect transfers on the coordinator",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all transfers",
	Long: `List all transfers known to the coordinator, newest first.

Examples:
  # List transfers
  sftsctl files list`,
	Args: cobra.NoArgs,
	RunE: runFilesList,
}

var filesGetCmd = &cobra.Command{
	Use:   "get <file-id>",
	Short: "Show one transfer with chunk-level progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesGet,
}

// FileList is a list of transfers for table rendering.
type FileList []apiclient.FileInfo

// Headers implements TableRenderer.
func (fl FileList) Headers() []string {
	return []string{"FILE ID", "FILENAME", "SIZE", "STATUS", "PRIORITY", "CREATED"}
}

// Rows implements TableRenderer.
func (fl FileList) Rows() [][]string {
	rows := make([][]string, 0, len(fl))
	for _, f := range fl {
		rows = append(rows, []string{
			f.FileID,
			f.Filename,
			bytesize.ByteSize(f.Size).String(),
			f.Status,
			f.Priority,
			f.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

func runFilesList(cmd *cobra.Command, args []string) error {
	files, err := receiver.New(newClient()).List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list transfers: %w", err)
	}

	if len(files) == 0 {
		fmt.Println("No transfers found.")
		return nil
	}
	return output.PrintTable(os.Stdout, FileList(files))
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	detail, err := receiver.New(newClient()).Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get transfer: %w", err)
	}

	pairs := [][2]string{
		{"File ID", detail.FileID},
		{"Filename", detail.Filename},
		{"Size", bytesize.ByteSize(detail.Size).String()},
		{"Status", detail.Status},
		{"Priority", detail.Priority},
		{"Chunk size", bytesize.ByteSize(detail.ChunkSize).String()},
		{"Chunks", strconv.Itoa(detail.ReceivedChunks) + "/" + strconv.Itoa(detail.TotalChunks)},
		{"Progress", fmt.Sprintf("%.1f%%", detail.Progress)},
		{"Created", detail.CreatedAt.Local().Format(time.DateTime)},
	}
	if detail.CompletedAt != nil {
		pairs = append(pairs, [2]string{"Completed", detail.CompletedAt.Local().Format(time.DateTime)})
	}
	return output.SimpleTable(os.Stdout, pairs)
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesGetCmd)
}
