package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check coordinator health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		health, err := client.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("coordinator %s is unreachable or unhealthy: %w", client.BaseURL(), err)
		}

		fmt.Printf("Coordinator %s is %s\n", client.BaseURL(), health.Status)
		return nil
	},
}
