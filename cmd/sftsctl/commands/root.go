// Package commands implements the CLI commands for the sftsctl client.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/apiclient"
	"github.com/sfts-dev/sfts/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// settings holds the resolved client settings for the current invocation.
// Populated by the root PersistentPreRunE before any subcommand runs.
var settings *config.SenderSettings

var (
	flagServer  string
	flagVerbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sftsctl",
	Short: "sfts control - file transfer client",
	Long: `sftsctl is the command-line client for the sfts coordinator.

Use this tool to send files, monitor and resume transfers, download
assembled files, and verify their integrity.

Settings come from the environment (SFTS_SERVER, SFTS_TIMEOUT,
SFTS_CHUNK_SIZE, SFTS_MAX_RETRIES); flags override them.

Use "sftsctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.LoadSenderSettings()
		if err != nil {
			return err
		}
		if flagServer != "" {
			settings.Server = flagServer
		}

		level := "INFO"
		if flagVerbose {
			level = "DEBUG"
		}
		return logger.Init(logger.Config{
			Level:  level,
			Format: "text",
			Output: "stderr",
		})
	},
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newClient builds an API client from the resolved settings.
func newClient() *apiclient.Client {
	return apiclient.New(settings.Server).WithTimeout(settings.Timeout)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Coordinator URL (overrides SFTS_SERVER)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(missingCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
}
