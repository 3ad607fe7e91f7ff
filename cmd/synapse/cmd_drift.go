package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/drift"
	"github.com/network-synapse/synapse/pkg/util"
)

var (
	driftAddress   string
	driftRemediate bool
)

var driftCmd = &cobra.Command{
	Use:   "drift <device>",
	Short: "Compare intent with the device's running config",
	Long: `Render the device's intent and compare it with the running config read
over gNMI. With --remediate a change saga is run when drift exists.

Examples:
  synapse drift leaf01
  synapse drift leaf01 --remediate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hostname := args[0]
		client := newIntentClient()

		d, err := client.Fetch(ctx, hostname)
		if err != nil {
			return err
		}
		artifacts, err := newTransformer().Render(d)
		if err != nil {
			return err
		}
		addr := driftAddress
		if addr == "" {
			addr = d.ManagementAddress()
		}
		if addr == "" {
			return util.NewValidationError(fmt.Sprintf("%s has no management_ip in the source of truth: use --address", hostname))
		}

		gw, err := newGateway()
		if err != nil {
			return err
		}
		running, err := gw.Backup(ctx, addr)
		if err != nil {
			return err
		}

		report := drift.Compare(artifacts, running)
		report.Device = hostname

		audit.Log(audit.NewEvent(audit.CurrentUser(), hostname, audit.OpDrift).
			WithDetail("items", strconv.Itoa(len(report.Items))).
			WithSuccess())

		if app.jsonOutput {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			status := cli.Green("in sync")
			if report.HasDrift() {
				status = cli.Yellow(fmt.Sprintf("%d differences", len(report.Items)))
			}
			fmt.Printf("%s %s\n", cli.DotPad(hostname, 30), status)
			if report.HasDrift() {
				fmt.Println(report.String())
			}
		}

		if !driftRemediate || !report.HasDrift() {
			return nil
		}
		fmt.Println()
		fmt.Printf("Remediating %s\n", hostname)
		return runChange(cmd, hostname, addr)
	},
}

func init() {
	driftCmd.Flags().StringVar(&driftAddress, "address", "", "Management address (default from the source of truth)")
	driftCmd.Flags().BoolVar(&driftRemediate, "remediate", false, "Run a change when drift is found")
}
