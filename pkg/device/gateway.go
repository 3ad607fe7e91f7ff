// Package device talks to network devices over gNMI.
//
// The gateway is stateless: every call opens a session, runs one RPC, and
// closes it. Retrying is the caller's concern.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmi/proto/gnmi_ext"
	"github.com/openconfig/gnmic/pkg/api"
	target "github.com/openconfig/gnmic/pkg/api/target"

	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/util"
)

// EncodingJSONIETF is the only encoding the gateway speaks.
const EncodingJSONIETF = "json_ietf"

// DefaultPort is the SR Linux gNMI port.
const DefaultPort = 57400

// SetMode selects how Deploy writes the artifact.
type SetMode int

const (
	// Merge issues a gNMI update at the root.
	Merge SetMode = iota
	// Replace issues a gNMI replace at the root. Used to restore a backup.
	Replace
)

func (m SetMode) String() string {
	if m == Replace {
		return "replace"
	}
	return "merge"
}

// Gateway is the device-facing surface the change pipeline depends on.
type Gateway interface {
	Backup(ctx context.Context, address string) ([]byte, error)
	Deploy(ctx context.Context, address string, artifact []byte, mode SetMode) error
	Probe(ctx context.Context, address string) bool
	ReadState(ctx context.Context, address, path string) ([]byte, error)
}

// Session is one open gNMI connection. *target.Target satisfies it.
type Session interface {
	Get(ctx context.Context, req *gnmi.GetRequest) (*gnmi.GetResponse, error)
	Set(ctx context.Context, req *gnmi.SetRequest) (*gnmi.SetResponse, error)
	Capabilities(ctx context.Context, ext ...*gnmi_ext.Extension) (*gnmi.CapabilityResponse, error)
	Close() error
}

// DialFunc opens a session to address (host:port).
type DialFunc func(ctx context.Context, address string) (Session, error)

// GNMIGateway implements Gateway with gnmic.
type GNMIGateway struct {
	cfg  config.DeviceConfig
	dial DialFunc
}

// Option configures a GNMIGateway.
type Option func(*GNMIGateway)

// WithDialer replaces the session dialer.
func WithDialer(d DialFunc) Option {
	return func(g *GNMIGateway) { g.dial = d }
}

// NewGNMIGateway creates a gateway from device configuration.
func NewGNMIGateway(cfg config.DeviceConfig, opts ...Option) *GNMIGateway {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	g := &GNMIGateway{cfg: cfg}
	g.dial = g.dialTarget
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ Gateway = (*GNMIGateway)(nil)

// targetAddress appends the configured port when address has none.
func (g *GNMIGateway) targetAddress(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(g.cfg.Port))
}

// tunneledTarget closes the SSH forward together with the gNMI target.
type tunneledTarget struct {
	*target.Target
	tunnel *SSHTunnel
}

func (t *tunneledTarget) Close() error {
	err := t.Target.Close()
	t.tunnel.Close()
	return err
}

func (g *GNMIGateway) dialTarget(ctx context.Context, address string) (Session, error) {
	dialAddr := address
	var tunnel *SSHTunnel
	if g.cfg.Tunnel.Enabled() {
		var err error
		tunnel, err = NewSSHTunnel(g.cfg.Tunnel, address)
		if err != nil {
			return nil, err
		}
		dialAddr = tunnel.LocalAddr()
	}

	opts := []api.TargetOption{
		api.Name(address),
		api.Address(dialAddr),
		api.Timeout(g.cfg.Timeout),
		api.Insecure(!g.cfg.TLS),
		api.SkipVerify(g.cfg.SkipVerify),
	}
	if g.cfg.Username != "" {
		opts = append(opts, api.Username(g.cfg.Username))
	}
	if g.cfg.Password != "" {
		opts = append(opts, api.Password(g.cfg.Password))
	}

	t, err := api.NewTarget(opts...)
	if err != nil {
		if tunnel != nil {
			tunnel.Close()
		}
		return nil, fmt.Errorf("create gnmi target: %w", err)
	}
	if err := t.CreateGNMIClient(ctx); err != nil {
		if tunnel != nil {
			tunnel.Close()
		}
		return nil, err
	}
	if tunnel != nil {
		return &tunneledTarget{Target: t, tunnel: tunnel}, nil
	}
	return t, nil
}

// withSession runs fn on a fresh session bounded by the per-call timeout.
func (g *GNMIGateway) withSession(ctx context.Context, op, address string, fn func(context.Context, Session) error) error {
	addr := g.targetAddress(address)
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	s, err := g.dial(ctx, addr)
	if err != nil {
		return util.NewConnectivityError(op, addr, err)
	}
	defer s.Close()

	if err := fn(ctx, s); err != nil {
		return classify(op, addr, err)
	}
	return nil
}

// Backup reads the full running configuration.
func (g *GNMIGateway) Backup(ctx context.Context, address string) ([]byte, error) {
	req, err := api.NewGetRequest(
		api.Path("/"),
		api.Encoding(EncodingJSONIETF),
		api.DataType("config"),
	)
	if err != nil {
		return nil, fmt.Errorf("build backup request: %w", err)
	}

	var blob []byte
	err = g.withSession(ctx, "backup", address, func(ctx context.Context, s Session) error {
		resp, err := s.Get(ctx, req)
		if err != nil {
			return err
		}
		blob, err = collectRoot(resp)
		return err
	})
	if err != nil {
		return nil, err
	}
	util.WithDevice(address).Infof("Backed up running config (%d bytes)", len(blob))
	return blob, nil
}

// Deploy writes artifact at the root. The artifact must be a JSON document.
func (g *GNMIGateway) Deploy(ctx context.Context, address string, artifact []byte, mode SetMode) error {
	addr := g.targetAddress(address)
	if !json.Valid(artifact) {
		return util.NewMalformedPayloadError("deploy", addr, "artifact is not valid JSON")
	}

	value := api.Value(string(artifact), EncodingJSONIETF)
	op := api.Update(api.Path("/"), value)
	if mode == Replace {
		op = api.Replace(api.Path("/"), value)
	}
	req, err := api.NewSetRequest(op)
	if err != nil {
		return util.NewMalformedPayloadError("deploy", addr, err.Error())
	}

	err = g.withSession(ctx, "deploy", address, func(ctx context.Context, s Session) error {
		_, err := s.Set(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	util.WithDevice(address).Infof("Deployed %d bytes (%s)", len(artifact), mode)
	return nil
}

// Probe reports whether the device answers a Capabilities request.
func (g *GNMIGateway) Probe(ctx context.Context, address string) bool {
	err := g.withSession(ctx, "probe", address, func(ctx context.Context, s Session) error {
		_, err := s.Capabilities(ctx)
		return err
	})
	if err != nil {
		util.WithDevice(address).Debugf("probe failed: %v", err)
		return false
	}
	return true
}

// ReadState reads operational state at path.
func (g *GNMIGateway) ReadState(ctx context.Context, address, path string) ([]byte, error) {
	req, err := api.NewGetRequest(
		api.Path(path),
		api.Encoding(EncodingJSONIETF),
		api.DataType("state"),
	)
	if err != nil {
		return nil, fmt.Errorf("build state request for %s: %w", path, err)
	}

	var blob []byte
	err = g.withSession(ctx, "read-state", address, func(ctx context.Context, s Session) error {
		resp, err := s.Get(ctx, req)
		if err != nil {
			return err
		}
		blob, err = collectJSON(resp)
		return err
	})
	return blob, err
}

// CapabilityInfo summarises a Capabilities response.
type CapabilityInfo struct {
	Version   string   `json:"gnmi_version"`
	Encodings []string `json:"encodings"`
	Models    []string `json:"models"`
}

// Capabilities returns what the device advertises.
func (g *GNMIGateway) Capabilities(ctx context.Context, address string) (*CapabilityInfo, error) {
	var info *CapabilityInfo
	err := g.withSession(ctx, "capabilities", address, func(ctx context.Context, s Session) error {
		resp, err := s.Capabilities(ctx)
		if err != nil {
			return err
		}
		info = &CapabilityInfo{Version: resp.GetGNMIVersion()}
		for _, enc := range resp.GetSupportedEncodings() {
			info.Encodings = append(info.Encodings, enc.String())
		}
		for _, m := range resp.GetSupportedModels() {
			info.Models = append(info.Models, m.GetName()+"@"+m.GetVersion())
		}
		return nil
	})
	return info, err
}
