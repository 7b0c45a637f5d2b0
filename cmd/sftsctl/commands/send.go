package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/pkg/uploader"
)

var (
	sendChunkSize  string
	sendPriority   string
	sendMaxRetries int
	sendAdaptive   bool
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Send a file to the coordinator",
	Long: `Send a file to the coordinator in integrity-checked chunks.

Interrupted transfers are resumable: running send again on the same
coordinator state only uploads the chunks that are still missing.

Examples:
  # Send with default settings
  sftsctl send backup.tar.gz

  # Send with a larger initial chunk size and high priority
  sftsctl send backup.tar.gz --chunk-size 1MiB --priority high

  # Let the chunk size adapt to observed network conditions
  sftsctl send backup.tar.gz --adaptive`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	chunkSize := settings.ChunkSize
	if sendChunkSize != "" {
		parsed, err := bytesize.Parse(sendChunkSize)
		if err != nil {
			return fmt.Errorf("invalid --chunk-size: %w", err)
		}
		chunkSize = parsed
	}

	maxRetries := settings.MaxRetries
	if sendMaxRetries > 0 {
		maxRetries = sendMaxRetries
	}

	up := uploader.New(newClient(), uploader.Config{
		ChunkSize:  chunkSize.Int64(),
		Priority:   sendPriority,
		MaxRetries: maxRetries,
		Adaptive:   sendAdaptive,
	})

	result, err := up.Send(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Transfer complete: %s\n", result.FileID)
	fmt.Printf("  Sent:        %s in %s\n", bytesize.ByteSize(result.BytesSent), result.Duration.Round(10*time.Millisecond))
	fmt.Printf("  Remote path: %s\n", result.RemotePath)
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendChunkSize, "chunk-size", "", "Initial chunk size, e.g. 256KiB or 1MiB (overrides SFTS_CHUNK_SIZE)")
	sendCmd.Flags().StringVar(&sendPriority, "priority", "normal", "Transfer priority (high|normal|low)")
	sendCmd.Flags().IntVar(&sendMaxRetries, "max-retries", 0, "Per-chunk retry budget (overrides SFTS_MAX_RETRIES)")
	sendCmd.Flags().BoolVar(&sendAdaptive, "adaptive", false, "Adapt chunk size to observed network conditions")
}
