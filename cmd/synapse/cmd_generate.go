package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/intent"
	"github.com/network-synapse/synapse/pkg/render"
	"github.com/network-synapse/synapse/pkg/util"
)

var (
	generateDevice    string
	generateDryRun    bool
	generateOutputDir string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render device artifacts from intent",
	Long: `Fetch intent from Infrahub and render the BGP and interface artifacts.

Artifacts are written to <output-dir>/<device>/bgp.json and interfaces.json.
With --dry-run they are printed instead. Nothing is pushed to a device.

Examples:
  synapse generate --device spine01
  synapse generate --device all --output-dir /tmp/configs
  synapse generate --device leaf01 --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newIntentClient()

		hosts := []string{generateDevice}
		if generateDevice == "all" {
			var err error
			hosts, err = client.ListDevices(ctx)
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
		}

		outDir := generateOutputDir
		if outDir == "" {
			outDir = app.settings.GetOutputDir()
		}

		transformer := newTransformer()
		user := audit.CurrentUser()
		var failed []string

		for _, host := range hosts {
			event := audit.NewEvent(user, host, audit.OpGenerate).WithDryRun(generateDryRun)

			artifacts, err := fetchAndRender(ctx, client, transformer, host)
			if err == nil && !generateDryRun {
				err = writeArtifacts(outDir, host, artifacts)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", cli.Red("FAIL"), host, err)
				failed = append(failed, host)
				audit.Log(event.WithError(err))
				continue
			}
			audit.Log(event.WithSuccess())

			if generateDryRun {
				fmt.Printf("%s\n", cli.Bold("# "+host+"/bgp.json"))
				cli.WriteRawJSON(os.Stdout, artifacts.BGP)
				fmt.Printf("%s\n", cli.Bold("# "+host+"/interfaces.json"))
				cli.WriteRawJSON(os.Stdout, artifacts.Interfaces)
				continue
			}
			fmt.Printf("%s %s -> %s\n", cli.Green("OK"), host, filepath.Join(outDir, host))
		}

		if len(failed) > 0 {
			return fmt.Errorf("generate failed for %d of %d devices: %s", len(failed), len(hosts), joinOr(failed, ""))
		}
		return nil
	},
}

func fetchAndRender(ctx context.Context, client *intent.Client, t *render.Transformer, host string) (*render.Artifacts, error) {
	d, err := client.Fetch(ctx, host)
	if err != nil {
		return nil, err
	}
	return t.Render(d)
}

func writeArtifacts(dir, host string, a *render.Artifacts) error {
	hostDir := filepath.Join(dir, host)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", hostDir, err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{"bgp.json", cli.PrettyJSON(a.BGP)},
		{"interfaces.json", cli.PrettyJSON(a.Interfaces)},
	}
	for _, f := range files {
		path := filepath.Join(hostDir, f.name)
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		util.WithDevice(host).Debugf("wrote %s (%d bytes)", path, len(f.data))
	}
	return nil
}

func init() {
	generateCmd.Flags().StringVar(&generateDevice, "device", "", "Device name, or 'all'")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "Print artifacts instead of writing files")
	generateCmd.Flags().StringVar(&generateOutputDir, "output-dir", "", "Output directory (default from settings, else ./generated-configs)")
	generateCmd.MarkFlagRequired("device")
}
