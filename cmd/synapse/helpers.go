package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/backup"
	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/cli"
	"github.com/network-synapse/synapse/pkg/device"
	"github.com/network-synapse/synapse/pkg/hygiene"
	"github.com/network-synapse/synapse/pkg/intent"
	"github.com/network-synapse/synapse/pkg/render"
	"github.com/network-synapse/synapse/pkg/util"
	"github.com/network-synapse/synapse/pkg/validate"
)

// ============================================================================
// Component construction
// ============================================================================

func newIntentClient() *intent.Client {
	return intent.NewClient(app.cfg.Infrahub, intent.WithAuditUser(audit.CurrentUser()))
}

// newGateway prompts for the device password when none is configured and
// stdin is a terminal.
func newGateway() (*device.GNMIGateway, error) {
	if app.cfg.Device.Password == "" {
		pw, err := cli.ReadPassword(fmt.Sprintf("Password for %s: ", app.cfg.Device.Username))
		if err != nil {
			return nil, fmt.Errorf("device password not configured: %w", err)
		}
		app.cfg.Device.Password = pw
	}
	return device.NewGNMIGateway(app.cfg.Device), nil
}

func newTransformer() *render.Transformer {
	return render.NewTransformer(render.OptionsFromConfig(app.cfg.Render))
}

func newBackupStore() *backup.Store {
	return backup.NewStore(app.cfg.Backup.Dir, app.cfg.Backup.Keep)
}

// newOrchestrator wires every component from configuration. reg may be nil.
func newOrchestrator(client *intent.Client, gw device.Gateway, journal change.Journal, reg prometheus.Registerer) *change.Orchestrator {
	return change.NewOrchestrator(client, gw, journal,
		change.WithTransformer(newTransformer()),
		change.WithChecker(hygiene.NewChecker(app.cfg.Hygiene.InterfacePrefixes)),
		change.WithValidator(validate.NewValidator(gw, app.cfg.Render.NetworkInstance)),
		change.WithArchive(newBackupStore()),
		change.WithPolicies(change.PolicyFromConfig(app.cfg.Retry.Fetch), change.PolicyFromConfig(app.cfg.Retry.Deploy)),
		change.WithMetrics(change.NewMetrics(reg)),
		change.WithUser(audit.CurrentUser()),
	)
}

// resolveAddress returns override or the device's management address from
// the source of truth.
func resolveAddress(ctx context.Context, client *intent.Client, hostname, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	d, err := client.GetDevice(ctx, hostname)
	if err != nil {
		return "", err
	}
	addr := d.ManagementAddress()
	if addr == "" {
		return "", util.NewValidationError(fmt.Sprintf("%s has no management_ip in the source of truth: use --address", hostname))
	}
	return addr, nil
}

// withDeviceLock holds the journal's device lock around fn when the
// journal backend supports locking.
func withDeviceLock(ctx context.Context, journal change.Journal, hostname string, fn func() error) error {
	locker, ok := journal.(change.Locker)
	if !ok {
		return fn()
	}
	holder := fmt.Sprintf("cli-%s-%d", audit.CurrentUser(), os.Getpid())
	if err := locker.Acquire(ctx, hostname, holder, 30*time.Minute); err != nil {
		return fmt.Errorf("%s: %w", hostname, err)
	}
	defer func() {
		if err := locker.Release(context.WithoutCancel(ctx), hostname, holder); err != nil {
			util.WithDevice(hostname).Warnf("releasing lock: %v", err)
		}
	}()
	return fn()
}

// ============================================================================
// Output
// ============================================================================

func printJSON(v interface{}) error {
	return cli.WriteJSON(os.Stdout, v)
}

func printRecord(rec *change.Record) {
	fmt.Printf("Change:   %s\n", cli.Bold(rec.ID))
	fmt.Printf("Device:   %s (%s)\n", rec.Hostname, rec.Address)
	fmt.Printf("Phase:    %s\n", rec.Phase)
	fmt.Printf("Outcome:  %s\n", cli.Outcome(string(rec.Outcome)))
	if rec.BackupPath != "" {
		fmt.Printf("Backup:   %s\n", rec.BackupPath)
	}
	if rec.FinishedAt != nil {
		fmt.Printf("Duration: %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	}

	if len(rec.History) > 0 {
		fmt.Println()
		t := cli.NewTable("AT", "FROM", "TO", "KIND", "ERROR").WithMaxWidth(100)
		for _, tr := range rec.History {
			t.Row(tr.At.Format("15:04:05.000"), string(tr.From), string(tr.To), string(tr.Kind), tr.Error)
		}
		t.Flush()
	}

	if len(rec.StepErrors) > 0 {
		fmt.Println()
		t := cli.NewTable("STEP", "ATTEMPT", "ERROR").WithMaxWidth(100)
		for _, se := range rec.StepErrors {
			t.Row(se.Step, fmt.Sprintf("%d", se.Attempt), se.Error)
		}
		t.Flush()
	}

	for _, r := range rec.Validation {
		fmt.Println()
		printValidation(r)
	}
}

func printValidation(r *validate.ValidationResult) {
	status := cli.Green("PASS")
	if !r.Passed {
		status = cli.Red("FAIL")
	}
	fmt.Printf("%s %s\n", cli.DotPad(r.Check, 30), status)
	if len(r.Details) == 0 {
		return
	}
	t := cli.NewTable("NAME", "STATUS", "ADMIN", "OPER", "REASON").WithPrefix("  ")
	for _, d := range r.Details {
		t.Row(d.Name, cli.Outcome(d.Status), d.AdminState, d.OperState, d.Reason)
	}
	t.Flush()
}

func printSummaries(records []*change.Record) {
	if len(records) == 0 {
		fmt.Println("No changes found")
		return
	}
	t := cli.NewTable("ID", "DEVICE", "PHASE", "OUTCOME", "STARTED")
	for _, r := range records {
		t.Row(r.ID, r.Hostname, string(r.Phase), cli.Outcome(string(r.Outcome)), r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	t.Flush()
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
