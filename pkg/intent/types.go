// Package intent reads declared device state from the Infrahub source of
// truth.
package intent

import (
	"strings"
)

// Field defaults applied when the source leaves a value empty
const (
	DefaultMTU         = 9214
	DefaultPeerGroup   = "underlay"
	DefaultSessionType = "EXTERNAL"
	DefaultSessionRole = "backbone"
	DefaultStatus      = StatusActive
)

// Interface roles
const (
	RoleFabric     = "fabric"
	RoleLoopback   = "loopback"
	RoleManagement = "management"
)

// Device statuses accepted by the source of truth
const (
	StatusActive       = "active"
	StatusProvisioning = "provisioning"
	StatusMaintenance  = "maintenance"
	StatusDrained      = "drained"
)

// ValidStatuses lists every status UpdateDeviceStatus accepts.
var ValidStatuses = []string{StatusActive, StatusProvisioning, StatusMaintenance, StatusDrained}

// IsValidStatus reports whether s is one of ValidStatuses.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// DeviceIntent is the declared state of one device.
type DeviceIntent struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	ManagementIP string             `json:"management_ip,omitempty"`
	LabNodeName  string             `json:"lab_node_name,omitempty"`
	Role         string             `json:"role"`
	Status       string             `json:"status"`
	ASN          int64              `json:"asn"`
	ASName       string             `json:"as_name,omitempty"`
	RouterID     string             `json:"router_id"`
	Interfaces   []InterfaceIntent  `json:"interfaces"`
	BGPSessions  []BGPSessionIntent `json:"bgp_sessions"`
}

// ManagementAddress returns the management IP without its prefix length.
func (d *DeviceIntent) ManagementAddress() string {
	if i := strings.IndexByte(d.ManagementIP, '/'); i >= 0 {
		return d.ManagementIP[:i]
	}
	return d.ManagementIP
}

// InterfaceIntent is one declared interface. Address keeps CIDR notation.
type InterfaceIntent struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MTU         int    `json:"mtu"`
	Role        string `json:"role"`
	Address     string `json:"address,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// BGPSessionIntent is one declared BGP session. LocalIP and RemoteIP keep
// CIDR notation as stored in the source.
type BGPSessionIntent struct {
	Description string `json:"description,omitempty"`
	SessionType string `json:"session_type"`
	Role        string `json:"role"`
	Status      string `json:"status,omitempty"`
	LocalAS     int64  `json:"local_as"`
	RemoteAS    int64  `json:"remote_as"`
	LocalIP     string `json:"local_ip"`
	RemoteIP    string `json:"remote_ip"`
	PeerGroup   string `json:"peer_group"`
}
