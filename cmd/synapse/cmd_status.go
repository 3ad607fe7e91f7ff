package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/intent"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Manage device status in the source of truth",
}

var statusSetCmd = &cobra.Command{
	Use:   "set <device> <status>",
	Short: "Set a device's status",
	Long: `Set a device's status in Infrahub.

Valid statuses: ` + strings.Join(intent.ValidStatuses, ", ") + `

Examples:
  synapse status set spine01 maintenance
  synapse status set spine01 active`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname, status := args[0], args[1]
		prev, err := newIntentClient().UpdateDeviceStatus(cmd.Context(), hostname, status)
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return printJSON(map[string]string{"device": hostname, "previous": prev, "status": status})
		}
		fmt.Printf("%s %s -> %s\n", cli.DotPad(hostname, 30), prev, cli.Outcome(status))
		return nil
	},
}

func init() {
	statusCmd.AddCommand(statusSetCmd)
}
