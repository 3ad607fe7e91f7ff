package testutil

import (
	"context"
	"sync"

	"github.com/network-synapse/synapse/pkg/device"
)

// DeployCall records one FakeGateway.Deploy invocation.
type DeployCall struct {
	Address  string
	Artifact []byte
	Mode     device.SetMode
}

// FakeGateway is an in-memory device.Gateway.
type FakeGateway struct {
	mu sync.Mutex

	BackupBlob []byte
	BackupErr  error

	// MergeErrs are returned by successive Merge deploys; the last one
	// repeats. An empty slice means every merge succeeds.
	MergeErrs  []error
	ReplaceErr error

	// State maps a ReadState path to its reply.
	State    map[string][]byte
	StateErr error

	Unreachable bool

	// BeforeDeploy runs at the start of every Deploy, outside the lock.
	BeforeDeploy func(ctx context.Context, mode device.SetMode)

	deploys []DeployCall
	backups int
	merges  int
}

var _ device.Gateway = (*FakeGateway)(nil)

// NewFakeGateway returns a gateway with a small running config.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		BackupBlob: []byte(`{"interface":[{"name":"ethernet-1/1","admin-state":"enable"}]}`),
		State:      make(map[string][]byte),
	}
}

func (g *FakeGateway) Backup(ctx context.Context, address string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backups++
	if g.BackupErr != nil {
		return nil, g.BackupErr
	}
	return g.BackupBlob, nil
}

func (g *FakeGateway) Deploy(ctx context.Context, address string, artifact []byte, mode device.SetMode) error {
	if g.BeforeDeploy != nil {
		g.BeforeDeploy(ctx, mode)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deploys = append(g.deploys, DeployCall{Address: address, Artifact: artifact, Mode: mode})
	if mode == device.Replace {
		return g.ReplaceErr
	}
	g.merges++
	if len(g.MergeErrs) == 0 {
		return nil
	}
	i := g.merges - 1
	if i >= len(g.MergeErrs) {
		i = len(g.MergeErrs) - 1
	}
	return g.MergeErrs[i]
}

func (g *FakeGateway) Probe(ctx context.Context, address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.Unreachable
}

func (g *FakeGateway) ReadState(ctx context.Context, address, path string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.StateErr != nil {
		return nil, g.StateErr
	}
	return g.State[path], nil
}

// Deploys returns every Deploy call in order.
func (g *FakeGateway) Deploys() []DeployCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]DeployCall(nil), g.deploys...)
}

// Restores returns the Replace deploys.
func (g *FakeGateway) Restores() []DeployCall {
	var out []DeployCall
	for _, d := range g.Deploys() {
		if d.Mode == device.Replace {
			out = append(out, d)
		}
	}
	return out
}

// Backups returns how many backups were taken.
func (g *FakeGateway) Backups() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backups
}
