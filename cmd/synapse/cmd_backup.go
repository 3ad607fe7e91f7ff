package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/backup"
	"github.com/network-synapse/synapse/pkg/cli"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect archived running-config backups",
	Long: `Inspect the running-config backups taken before each change.

Examples:
  synapse backup list spine01
  synapse backup show spine01
  synapse backup show spine01 20260301T120000.000000000Z-chg-20260301-120000-a1b2c3.json`,
}

var backupListCmd = &cobra.Command{
	Use:   "list <device>",
	Short: "List a device's backups, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newBackupStore().List(args[0])
		if err != nil {
			return err
		}
		if app.jsonOutput {
			if entries == nil {
				entries = []backup.Entry{}
			}
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Printf("No backups for %s\n", args[0])
			return nil
		}
		t := cli.NewTable("CREATED", "CHANGE", "SIZE", "FILE")
		for _, e := range entries {
			t.Row(e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.ChangeID, fmt.Sprintf("%d", e.Size), e.File)
		}
		t.Flush()
		return nil
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show <device> [file]",
	Short: "Print a backup (the newest by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newBackupStore()
		entry := backup.Entry{Host: args[0]}
		if len(args) == 2 {
			entry.File = args[1]
		} else {
			latest, err := store.Latest(args[0])
			if err != nil {
				return err
			}
			entry = latest
		}
		data, err := store.Read(entry)
		if err != nil {
			return err
		}
		return cli.WriteRawJSON(os.Stdout, data)
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd, backupShowCmd)
}
