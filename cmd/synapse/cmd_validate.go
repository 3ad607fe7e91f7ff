package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/util"
	"github.com/network-synapse/synapse/pkg/validate"
)

var validateAddress string

var validateCmd = &cobra.Command{
	Use:   "validate <device>",
	Short: "Run the post-deploy state checks only",
	Long: `Read operational state from the device and check that every BGP
neighbor is established and every intended interface is up. Nothing is
pushed and nothing is rolled back.

Examples:
  synapse validate spine01
  synapse validate leaf01 --address 172.20.20.4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hostname := args[0]
		client := newIntentClient()

		d, err := client.Fetch(ctx, hostname)
		if err != nil {
			return err
		}
		addr := validateAddress
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
		v := validate.NewValidator(gw, app.cfg.Render.NetworkInstance)

		bgp, err := v.CheckBGPEstablished(ctx, addr)
		if err != nil {
			return err
		}
		ifaces, err := v.CheckInterfaceState(ctx, addr, newTransformer().InterfaceView(d).Interfaces)
		if err != nil {
			return err
		}
		results := []*validate.ValidationResult{bgp, ifaces}

		if app.jsonOutput {
			if err := printJSON(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				printValidation(r)
			}
		}

		vb := &util.ValidationBuilder{}
		for _, r := range results {
			for _, f := range r.Failures() {
				vb.AddErrorf("%s %s: %s", r.Check, f.Name, f.Reason)
			}
		}
		return vb.Build()
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateAddress, "address", "", "Management address (default from the source of truth)")
}
