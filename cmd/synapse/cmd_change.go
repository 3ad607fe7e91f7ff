package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/util"
)

var changeCmd = &cobra.Command{
	Use:   "change",
	Short: "Run, recover and inspect change sagas",
	Long: `Run, recover and inspect change sagas.

A change backs up the running config, renders intent, gates it through
hygiene, deploys it and validates the result. Any failure after the deploy
restores the backup. Every step is journaled so an interrupted change can
be finished with 'change recover'.

Examples:
  synapse change run spine01
  synapse change run leaf01 --address 172.20.20.4
  synapse change list --pending
  synapse change show chg-20260301-120000-a1b2c3
  synapse change recover chg-20260301-120000-a1b2c3`,
}

var (
	changeAddress string
	changeDevice  string
	changePending bool
	changeLimit   int
)

var changeRunCmd = &cobra.Command{
	Use:   "run <device>",
	Short: "Run the change saga for one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChange(cmd, args[0], changeAddress)
	},
}

// runChange resolves the address, takes the device lock and runs the saga.
func runChange(cmd *cobra.Command, hostname, address string) error {
	ctx := cmd.Context()
	client := newIntentClient()

	addr, err := resolveAddress(ctx, client, hostname, address)
	if err != nil {
		return err
	}
	gw, err := newGateway()
	if err != nil {
		return err
	}
	journal, err := change.NewJournal(app.cfg.Journal)
	if err != nil {
		return err
	}
	defer journal.Close()

	orch := newOrchestrator(client, gw, journal, nil)

	var rec *change.Record
	err = withDeviceLock(ctx, journal, hostname, func() error {
		var runErr error
		rec, runErr = orch.Run(ctx, change.Request{Hostname: hostname, Address: addr})
		return runErr
	})
	return reportRecord(rec, err)
}

func reportRecord(rec *change.Record, err error) error {
	if rec == nil {
		return err
	}
	if app.jsonOutput {
		if jerr := printJSON(rec); jerr != nil {
			return jerr
		}
		return err
	}
	printRecord(rec)
	fmt.Println()
	return err
}

var changeRecoverCmd = &cobra.Command{
	Use:   "recover <id>",
	Short: "Finish an interrupted change",
	Long: `Finish a change whose process died before it reached a terminal phase.

A change interrupted after any deploy attempt is rolled back to its backup.
One interrupted before the deploy is aborted. One that had already validated
is marked succeeded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		journal, err := change.NewJournal(app.cfg.Journal)
		if err != nil {
			return err
		}
		defer journal.Close()

		existing, err := journal.Load(ctx, args[0])
		if err != nil {
			return err
		}
		gw, err := newGateway()
		if err != nil {
			return err
		}
		orch := newOrchestrator(newIntentClient(), gw, journal, nil)

		var rec *change.Record
		err = withDeviceLock(ctx, journal, existing.Hostname, func() error {
			var recErr error
			rec, recErr = orch.Recover(ctx, args[0])
			return recErr
		})
		return reportRecord(rec, err)
	},
}

var changeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled changes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := change.NewJournal(app.cfg.Journal)
		if err != nil {
			return err
		}
		defer journal.Close()

		records, err := journal.List(cmd.Context(), change.JournalFilter{
			Device:      changeDevice,
			PendingOnly: changePending,
			Limit:       changeLimit,
		})
		if err != nil {
			return err
		}

		if app.jsonOutput {
			summaries := make([]change.Summary, 0, len(records))
			for _, r := range records {
				summaries = append(summaries, r.Summary())
			}
			return printJSON(summaries)
		}
		printSummaries(records)
		return nil
	},
}

var changeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one journaled change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := change.NewJournal(app.cfg.Journal)
		if err != nil {
			return err
		}
		defer journal.Close()

		rec, err := journal.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return printJSON(rec)
		}
		printRecord(rec)
		if !rec.Terminal() {
			util.WithChange(rec.ID, rec.Hostname).Warnf("change is not finished: run 'synapse change recover %s'", rec.ID)
		}
		return nil
	},
}

func init() {
	changeRunCmd.Flags().StringVar(&changeAddress, "address", "", "Management address (default from the source of truth)")

	changeListCmd.Flags().StringVar(&changeDevice, "device", "", "Filter by device")
	changeListCmd.Flags().BoolVar(&changePending, "pending", false, "Only changes that have not finished")
	changeListCmd.Flags().IntVar(&changeLimit, "limit", 50, "Maximum changes to show")

	changeCmd.AddCommand(changeRunCmd, changeRecoverCmd, changeListCmd, changeShowCmd)
}
