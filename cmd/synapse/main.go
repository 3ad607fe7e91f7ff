// Synapse - single-device network change pipeline
//
// Synapse reads the declared state of a device from Infrahub, renders it
// into SR Linux JSON, gates it through static hygiene checks, pushes it
// over gNMI and verifies the result, rolling back to the pre-change backup
// when anything after the push fails.
//
// Pipeline:
//
//	backup -> fetch -> render -> hygiene -> deploy -> validate -> status
//	                                          │          │
//	                                          └─ restore ┘  (on failure)
//
// Examples:
//
//	synapse generate --device all --dry-run           # Preview artifacts
//	synapse change run spine01                        # Run the change saga
//	synapse change list --pending                     # Interrupted sagas
//	synapse change recover chg-20260301-120000-a1b2c3 # Finish one of them
//	synapse drift leaf01                              # Intent vs running
//	synapse serve --listen :9400                      # HTTP front end
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/settings"
	"github.com/network-synapse/synapse/pkg/util"
	"github.com/network-synapse/synapse/pkg/version"
)

// App holds the global flags and the state PersistentPreRunE builds.
type App struct {
	configPath string
	verbose    bool
	jsonOutput bool

	settings    *settings.Settings
	cfg         *config.Config
	auditLogger *audit.FileLogger
}

var app = &App{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if app.auditLogger != nil {
		app.auditLogger.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.Red("Error:"), err)
		os.Exit(change.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:               "synapse",
	Short:             "Single-device network change pipeline",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Synapse pushes the intended state of one device from Infrahub to the
device over gNMI as a journaled saga with automatic rollback.

Exit codes:
  0  succeeded
  1  aborted or other error
  2  rejected by the hygiene gate
  3  rolled back
  4  rollback failed, device needs attention`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isMetaCommand(cmd) {
			return nil
		}
		return app.setup(cmd)
	},
}

func (a *App) setup(cmd *cobra.Command) error {
	var err error
	a.settings, err = settings.Load()
	if err != nil {
		util.Warnf("Could not load settings: %v", err)
		a.settings = &settings.Settings{}
	}

	// Quiet by default, info for the long-running server, debug on -v
	level := "warn"
	if cmd == serveCmd {
		level = "info"
	}
	if a.verbose {
		level = "debug"
	}
	if err := util.SetLogLevel(level); err != nil {
		return err
	}
	if a.jsonOutput {
		util.SetJSONFormat()
	}

	path := a.configPath
	if path == "" {
		path = a.settings.ConfigPath
	}
	a.cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	a.cfg.ApplyEnv(os.LookupEnv)
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	auditPath := a.cfg.Audit.Path
	if a.settings.AuditLog != "" {
		auditPath = a.settings.AuditLog
	}
	logger, err := audit.NewFileLogger(auditPath, audit.RotationConfig{
		MaxSize:    int64(a.cfg.Audit.MaxSizeMB) * 1024 * 1024,
		MaxBackups: a.cfg.Audit.MaxBackups,
	})
	if err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
	} else {
		a.auditLogger = logger
		audit.SetDefaultLogger(logger)
	}
	return nil
}

// isMetaCommand reports whether cmd runs without configuration.
func isMetaCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c {
		case settingsCmd, versionCmd:
			return true
		}
		if c.Name() == "help" {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output and JSON logs")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{generateCmd, hygieneCmd, changeCmd, validateCmd, driftCmd, serveCmd} {
		cmd.GroupID = "pipeline"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{deviceCmd, backupCmd, statusCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{auditCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}
