package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/cli"
)

var (
	auditDevice   string
	auditUser     string
	auditChange   string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit trail",
	Long: `View the audit trail of changes, status updates and generate runs.

Examples:
  synapse audit --device spine01
  synapse audit --last 24h --failures
  synapse audit --change chg-20260301-120000-a1b2c3 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			ChangeID:    auditChange,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if app.jsonOutput {
			if events == nil {
				events = []*audit.Event{}
			}
			return printJSON(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "DEVICE", "OPERATION", "CHANGE", "OUTCOME", "STATUS")
		for _, event := range events {
			status := cli.Green("ok")
			if !event.Success {
				status = cli.Red("failed")
			}
			if event.DryRun {
				status = cli.Yellow("dry-run")
			}
			t.Row(
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				event.Operation,
				event.ChangeID,
				cli.Outcome(event.Outcome),
				status,
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditCmd.Flags().StringVar(&auditChange, "change", "", "Filter by change id")
	auditCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h, 30m)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")
}
