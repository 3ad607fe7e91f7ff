package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/hygiene"
)

var hygieneCmd = &cobra.Command{
	Use:   "hygiene <bgp.json> <interfaces.json>",
	Short: "Run the static hygiene checks on rendered artifacts",
	Long: `Run the pre-deploy hygiene gate against artifact files, for example
the output of 'synapse generate'. Exits 2 when the gate rejects them.

Examples:
  synapse hygiene generated-configs/spine01/bgp.json generated-configs/spine01/interfaces.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bgp, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ifaces, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		checker := hygiene.NewChecker(app.cfg.Hygiene.InterfacePrefixes)
		if err := checker.RunAll(bgp, ifaces); err != nil {
			fmt.Printf("%s %s\n", cli.DotPad("hygiene", 30), cli.Red("FAIL"))
			return fmt.Errorf("%w: %v", change.ErrHygieneRejected, err)
		}
		fmt.Printf("%s %s\n", cli.DotPad("hygiene", 30), cli.Green("PASS"))
		return nil
	},
}
