// Package render turns a DeviceIntent into SR Linux configuration
// artifacts.
//
// The view functions are pure: the same intent always yields the same
// view, in input order. Peer addresses are emitted bare; interface
// addresses keep their prefix length.
package render

import (
	"strings"

	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/intent"
	"github.com/network-synapse/synapse/pkg/util"
)

// Options are the names stamped into every artifact.
type Options struct {
	NetworkInstance   string
	GroupName         string
	ImportPolicy      string
	ExportPolicy      string
	SubinterfaceIndex int
}

// DefaultOptions returns the reference naming.
func DefaultOptions() Options {
	return Options{
		NetworkInstance: "default",
		GroupName:       intent.DefaultPeerGroup,
		ImportPolicy:    "import-all",
		ExportPolicy:    "export-all",
	}
}

// OptionsFromConfig fills Options from configuration, keeping defaults for
// empty fields.
func OptionsFromConfig(cfg config.RenderConfig) Options {
	o := DefaultOptions()
	if cfg.NetworkInstance != "" {
		o.NetworkInstance = cfg.NetworkInstance
	}
	if cfg.GroupName != "" {
		o.GroupName = cfg.GroupName
	}
	if cfg.ImportPolicy != "" {
		o.ImportPolicy = cfg.ImportPolicy
	}
	if cfg.ExportPolicy != "" {
		o.ExportPolicy = cfg.ExportPolicy
	}
	return o
}

// BGPView is the BGP rendering input for one device.
type BGPView struct {
	NetworkInstance string    `json:"network_instance"`
	LocalAS         int64     `json:"local_as"`
	RouterID        string    `json:"router_id"`
	GroupName       string    `json:"group_name"`
	ImportPolicy    string    `json:"import_policy"`
	ExportPolicy    string    `json:"export_policy"`
	Peers           []BGPPeer `json:"peers"`
}

// BGPPeer is one neighbor. Address is always a bare IP.
type BGPPeer struct {
	Address     string `json:"address"`
	PeerAS      int64  `json:"peer_as"`
	Group       string `json:"group"`
	Description string `json:"description,omitempty"`
}

// InterfaceView is the interface rendering input for one device.
type InterfaceView struct {
	Interfaces []InterfaceEntry `json:"interfaces"`
}

// InterfaceEntry is one device-pushed interface. Address keeps CIDR form.
type InterfaceEntry struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Enabled           bool   `json:"enabled"`
	MTU               int    `json:"mtu"`
	SubinterfaceIndex int    `json:"subinterface_index"`
	Address           string `json:"address,omitempty"`
}

// Transformer renders intents with a fixed set of Options.
type Transformer struct {
	opts Options
}

// NewTransformer creates a transformer.
func NewTransformer(opts Options) *Transformer {
	return &Transformer{opts: opts}
}

var defaultTransformer = NewTransformer(DefaultOptions())

// ToBGPView renders a BGP view with DefaultOptions.
func ToBGPView(d *intent.DeviceIntent) BGPView {
	return defaultTransformer.BGPView(d)
}

// ToInterfaceView renders an interface view with DefaultOptions.
func ToInterfaceView(d *intent.DeviceIntent) InterfaceView {
	return defaultTransformer.InterfaceView(d)
}

// BGPView derives the BGP view of d.
func (t *Transformer) BGPView(d *intent.DeviceIntent) BGPView {
	v := BGPView{
		NetworkInstance: t.opts.NetworkInstance,
		LocalAS:         d.ASN,
		RouterID:        util.StripPrefix(d.RouterID),
		GroupName:       t.opts.GroupName,
		ImportPolicy:    t.opts.ImportPolicy,
		ExportPolicy:    t.opts.ExportPolicy,
		Peers:           make([]BGPPeer, 0, len(d.BGPSessions)),
	}
	for _, s := range d.BGPSessions {
		group := s.PeerGroup
		if group == "" {
			group = t.opts.GroupName
		}
		v.Peers = append(v.Peers, BGPPeer{
			Address:     util.StripPrefix(s.RemoteIP),
			PeerAS:      s.RemoteAS,
			Group:       group,
			Description: s.Description,
		})
	}
	return v
}

// InterfaceView derives the interface view of d. Only fabric and loopback
// interfaces are kept; management addressing is never pushed.
func (t *Transformer) InterfaceView(d *intent.DeviceIntent) InterfaceView {
	v := InterfaceView{Interfaces: make([]InterfaceEntry, 0, len(d.Interfaces))}
	for _, iface := range d.Interfaces {
		if !pushedRole(iface.Role) {
			continue
		}
		mtu := iface.MTU
		if mtu == 0 {
			mtu = intent.DefaultMTU
		}
		v.Interfaces = append(v.Interfaces, InterfaceEntry{
			Name:              iface.Name,
			Description:       iface.Description,
			Enabled:           iface.Enabled,
			MTU:               mtu,
			SubinterfaceIndex: t.opts.SubinterfaceIndex,
			Address:           iface.Address,
		})
	}
	return v
}

func pushedRole(role string) bool {
	switch strings.ToLower(role) {
	case intent.RoleFabric, intent.RoleLoopback:
		return true
	}
	return false
}
