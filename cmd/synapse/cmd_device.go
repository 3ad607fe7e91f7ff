package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/util"
)

var deviceAddress string

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Talk to a device over gNMI",
	Long: `Talk to a device over gNMI without running a change.

Examples:
  synapse device probe spine01
  synapse device backup spine01
  synapse device backup spine01 --print`,
}

var deviceProbeCmd = &cobra.Command{
	Use:   "probe <device>",
	Short: "Check gNMI reachability and list capabilities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr, err := resolveAddress(ctx, newIntentClient(), args[0], deviceAddress)
		if err != nil {
			return err
		}
		gw, err := newGateway()
		if err != nil {
			return err
		}

		info, err := gw.Capabilities(ctx, addr)
		if err != nil {
			fmt.Printf("%s %s\n", cli.DotPad(args[0]+" ("+addr+")", 40), cli.Red("unreachable"))
			return err
		}
		if app.jsonOutput {
			return printJSON(info)
		}

		fmt.Printf("%s %s\n", cli.DotPad(args[0]+" ("+addr+")", 40), cli.Green("reachable"))
		fmt.Printf("gNMI version: %s\n", info.Version)
		fmt.Printf("Encodings:    %s\n", joinOr(info.Encodings, "(none)"))
		fmt.Printf("Models:       %d\n", len(info.Models))
		if app.verbose {
			for _, m := range info.Models {
				fmt.Printf("  %s\n", m)
			}
		}
		return nil
	},
}

var devicePrintBackup bool

var deviceBackupCmd = &cobra.Command{
	Use:   "backup <device>",
	Short: "Read the running config and archive it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hostname := args[0]
		addr, err := resolveAddress(ctx, newIntentClient(), hostname, deviceAddress)
		if err != nil {
			return err
		}
		gw, err := newGateway()
		if err != nil {
			return err
		}

		blob, err := gw.Backup(ctx, addr)
		if err != nil {
			return err
		}
		if len(blob) == 0 {
			return util.NewMalformedPayloadError("backup", addr, "empty running config")
		}

		store := newBackupStore()
		entry, err := store.Save(hostname, "manual", blob)
		if err != nil {
			return err
		}

		if devicePrintBackup {
			return cli.WriteRawJSON(os.Stdout, blob)
		}
		if app.jsonOutput {
			return printJSON(entry)
		}
		fmt.Printf("%s %s (%d bytes)\n", cli.Green("Saved"), store.Path(entry), entry.Size)
		return nil
	},
}

func init() {
	deviceCmd.PersistentFlags().StringVar(&deviceAddress, "address", "", "Management address (default from the source of truth)")
	deviceBackupCmd.Flags().BoolVar(&devicePrintBackup, "print", false, "Print the running config after archiving it")

	deviceCmd.AddCommand(deviceProbeCmd, deviceBackupCmd)
}
