package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/render"
	"github.com/network-synapse/synapse/pkg/util"
)

func TestJoinOr(t *testing.T) {
	tests := []struct {
		items []string
		empty string
		want  string
	}{
		{nil, "(none)", "(none)"},
		{[]string{"JSON_IETF"}, "(none)", "JSON_IETF"},
		{[]string{"JSON", "JSON_IETF", "PROTO"}, "", "JSON, JSON_IETF, PROTO"},
	}
	for _, tt := range tests {
		if got := joinOr(tt.items, tt.empty); got != tt.want {
			t.Errorf("joinOr(%v) = %q, want %q", tt.items, got, tt.want)
		}
	}
}

func TestIsMetaCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		want bool
	}{
		{"settings show", settingsShowCmd, true},
		{"settings path", settingsPathCmd, true},
		{"version", versionCmd, true},
		{"change run", changeRunCmd, false},
		{"serve", serveCmd, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isMetaCommand(tt.cmd); got != tt.want {
				t.Errorf("isMetaCommand(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	a := &render.Artifacts{
		BGP:        []byte(`{"network-instance":[{"name":"default"}]}`),
		Interfaces: []byte(`{"interface":[{"name":"ethernet-1/1","mtu":9214}]}`),
	}

	if err := writeArtifacts(dir, "spine01", a); err != nil {
		t.Fatalf("writeArtifacts() error = %v", err)
	}

	bgp, err := os.ReadFile(filepath.Join(dir, "spine01", "bgp.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(bgp, "network-instance.0.name").String(); got != "default" {
		t.Errorf("bgp.json network-instance name = %q", got)
	}

	ifaces, err := os.ReadFile(filepath.Join(dir, "spine01", "interfaces.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(ifaces, "interface.0.mtu").Int(); got != 9214 {
		t.Errorf("interfaces.json mtu = %d", got)
	}
	if ifaces[len(ifaces)-1] != '\n' {
		t.Error("artifact is not pretty-printed")
	}
}

func TestResolveAddressOverride(t *testing.T) {
	addr, err := resolveAddress(context.Background(), nil, "spine01", "172.20.20.3")
	if err != nil || addr != "172.20.20.3" {
		t.Errorf("resolveAddress() = %q, %v", addr, err)
	}
}

type lockingJournal struct {
	*change.FileJournal
	*change.MemoryLocker
}

func TestWithDeviceLock(t *testing.T) {
	fj, err := change.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	j := lockingJournal{FileJournal: fj, MemoryLocker: change.NewMemoryLocker()}
	ctx := context.Background()

	var inner error
	err = withDeviceLock(ctx, j, "spine01", func() error {
		inner = withDeviceLock(ctx, j, "spine01", func() error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("outer withDeviceLock() error = %v", err)
	}
	if !errors.Is(inner, util.ErrDeviceLocked) {
		t.Errorf("nested lock error = %v, want ErrDeviceLocked", inner)
	}

	// Released after the outer call
	ran := false
	if err := withDeviceLock(ctx, j, "spine01", func() error { ran = true; return nil }); err != nil || !ran {
		t.Errorf("withDeviceLock() after release = %v, ran = %v", err, ran)
	}
}

func TestWithDeviceLockWithoutLocker(t *testing.T) {
	fj, err := change.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want := errors.New("boom")
	if err := withDeviceLock(context.Background(), fj, "spine01", func() error { return want }); err != want {
		t.Errorf("withDeviceLock() = %v, want %v", err, want)
	}
}
