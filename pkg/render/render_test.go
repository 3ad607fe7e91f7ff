package render

import (
	"bytes"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/intent"
)

func spine01() *intent.DeviceIntent {
	return &intent.DeviceIntent{
		ID:           "device-spine01-id",
		Name:         "spine01",
		ManagementIP: "172.20.20.3/24",
		Role:         "spine",
		Status:       intent.StatusActive,
		ASN:          65000,
		RouterID:     "10.1.0.1",
		Interfaces: []intent.InterfaceIntent{
			{Name: "ethernet-1/1", Description: "to leaf01", MTU: 9214, Role: intent.RoleFabric, Address: "10.0.0.0/31", Enabled: true},
			{Name: "loopback0", Description: "router id", Role: intent.RoleLoopback, Address: "10.1.0.1/32", Enabled: true},
			{Name: "mgmt0", Description: "oob", MTU: 1500, Role: intent.RoleManagement, Address: "172.20.20.3/24", Enabled: true},
		},
		BGPSessions: []intent.BGPSessionIntent{
			{Description: "spine01 to leaf01", LocalAS: 65000, RemoteAS: 65001, LocalIP: "10.0.0.0/31", RemoteIP: "10.0.0.1/31", PeerGroup: "underlay"},
		},
	}
}

func TestBGPView(t *testing.T) {
	v := ToBGPView(spine01())

	if v.LocalAS != 65000 {
		t.Errorf("LocalAS = %d", v.LocalAS)
	}
	if v.RouterID != "10.1.0.1" {
		t.Errorf("RouterID = %q", v.RouterID)
	}
	if v.GroupName != intent.DefaultPeerGroup {
		t.Errorf("GroupName = %q", v.GroupName)
	}
	if len(v.Peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(v.Peers))
	}
	p := v.Peers[0]
	if p.Address != "10.0.0.1" {
		t.Errorf("peer address = %q, want prefix stripped", p.Address)
	}
	if p.PeerAS != 65001 || p.Group != "underlay" {
		t.Errorf("peer = %+v", p)
	}
}

func TestBGPView_EmptyPeerGroupUsesDefault(t *testing.T) {
	d := spine01()
	d.BGPSessions[0].PeerGroup = ""
	v := NewTransformer(Options{GroupName: "fabric-peers"}).BGPView(d)
	if v.Peers[0].Group != "fabric-peers" {
		t.Errorf("Group = %q", v.Peers[0].Group)
	}
}

func TestInterfaceView(t *testing.T) {
	v := ToInterfaceView(spine01())

	if len(v.Interfaces) != 2 {
		t.Fatalf("expected 2 interfaces, got %d: %+v", len(v.Interfaces), v.Interfaces)
	}
	for _, e := range v.Interfaces {
		if e.Name == "mgmt0" {
			t.Error("management interface must not be rendered")
		}
	}
	if v.Interfaces[0].Address != "10.0.0.0/31" {
		t.Errorf("fabric address = %q, want CIDR kept", v.Interfaces[0].Address)
	}
	if v.Interfaces[1].MTU != intent.DefaultMTU {
		t.Errorf("zero MTU should default, got %d", v.Interfaces[1].MTU)
	}
}

func TestInterfaceView_RoleCaseInsensitive(t *testing.T) {
	d := spine01()
	d.Interfaces[0].Role = "Fabric"
	d.Interfaces[1].Role = "LOOPBACK"
	if n := len(ToInterfaceView(d).Interfaces); n != 2 {
		t.Errorf("expected 2 interfaces, got %d", n)
	}
}

func TestRender_Spine01(t *testing.T) {
	a, err := NewTransformer(DefaultOptions()).Render(spine01())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	bgp := gjson.ParseBytes(a.BGP)
	ni := bgp.Get("network-instance.0")
	if ni.Get("name").String() != "default" {
		t.Errorf("network-instance name = %q", ni.Get("name").String())
	}
	b := ni.Get("protocols.bgp")
	if b.Get("autonomous-system").Int() != 65000 {
		t.Errorf("autonomous-system = %d", b.Get("autonomous-system").Int())
	}
	if b.Get("router-id").String() != "10.1.0.1" {
		t.Errorf("router-id = %q", b.Get("router-id").String())
	}
	if b.Get("admin-state").String() != "enable" {
		t.Errorf("admin-state = %q", b.Get("admin-state").String())
	}
	if got := b.Get("group.#").Int(); got != 1 {
		t.Errorf("expected 1 group, got %d", got)
	}
	if b.Get("group.0.group-name").String() != "underlay" {
		t.Errorf("group-name = %q", b.Get("group.0.group-name").String())
	}
	if b.Get("neighbor.0.peer-address").String() != "10.0.0.1" {
		t.Errorf("peer-address = %q", b.Get("neighbor.0.peer-address").String())
	}
	if b.Get("neighbor.0.peer-as").Int() != 65001 {
		t.Errorf("peer-as = %d", b.Get("neighbor.0.peer-as").Int())
	}

	ifaces := gjson.ParseBytes(a.Interfaces)
	if n := ifaces.Get("interface.#").Int(); n != 2 {
		t.Fatalf("expected 2 interfaces, got %d", n)
	}
	eth := ifaces.Get(`interface.#(name=="ethernet-1/1")`)
	if !eth.Exists() {
		t.Fatal("ethernet-1/1 missing")
	}
	if eth.Get("subinterface.0.index").Int() != 0 {
		t.Errorf("subinterface index = %d", eth.Get("subinterface.0.index").Int())
	}
	if eth.Get("subinterface.0.ipv4.address.0.ip-prefix").String() != "10.0.0.0/31" {
		t.Errorf("ip-prefix = %q", eth.Get("subinterface.0.ipv4.address.0.ip-prefix").String())
	}
	if ifaces.Get(`interface.#(name=="mgmt0")`).Exists() {
		t.Error("mgmt0 must not be rendered")
	}
}

func TestRender_NoSessions(t *testing.T) {
	d := spine01()
	d.BGPSessions = nil
	a, err := NewTransformer(DefaultOptions()).Render(d)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	n := gjson.GetBytes(a.BGP, "network-instance.0.protocols.bgp.neighbor")
	if !n.IsArray() || len(n.Array()) != 0 {
		t.Errorf("neighbor = %s, want []", n.Raw)
	}
}

func TestRender_InterfaceWithoutAddress(t *testing.T) {
	d := spine01()
	d.Interfaces[0].Address = ""
	d.Interfaces[0].Enabled = false
	a, _ := NewTransformer(DefaultOptions()).Render(d)
	eth := gjson.GetBytes(a.Interfaces, `interface.#(name=="ethernet-1/1")`)
	if eth.Get("subinterface").Exists() {
		t.Error("interface without address should have no subinterface")
	}
	if eth.Get("admin-state").String() != "disable" {
		t.Errorf("admin-state = %q", eth.Get("admin-state").String())
	}
}

func TestRender_DistinctPeerGroups(t *testing.T) {
	d := spine01()
	d.BGPSessions = append(d.BGPSessions,
		intent.BGPSessionIntent{RemoteAS: 65002, RemoteIP: "10.0.0.3/31", PeerGroup: "overlay"},
		intent.BGPSessionIntent{RemoteAS: 65003, RemoteIP: "10.0.0.5/31", PeerGroup: "overlay"},
	)
	a, _ := NewTransformer(DefaultOptions()).Render(d)
	groups := gjson.GetBytes(a.BGP, "network-instance.0.protocols.bgp.group.#.group-name").Array()
	if len(groups) != 2 || groups[0].String() != "underlay" || groups[1].String() != "overlay" {
		t.Errorf("groups = %v", groups)
	}
}

func TestRender_Deterministic(t *testing.T) {
	tr := NewTransformer(DefaultOptions())
	a1, _ := tr.Render(spine01())
	a2, _ := tr.Render(spine01())
	if !bytes.Equal(a1.BGP, a2.BGP) || !bytes.Equal(a1.Interfaces, a2.Interfaces) {
		t.Error("rendering the same intent twice must produce identical bytes")
	}
}

func TestRender_Nil(t *testing.T) {
	if _, err := NewTransformer(DefaultOptions()).Render(nil); err == nil {
		t.Error("expected error for nil intent")
	}
}

func TestMerged(t *testing.T) {
	a, _ := NewTransformer(DefaultOptions()).Render(spine01())
	m, err := a.Merged()
	if err != nil {
		t.Fatalf("Merged() error = %v", err)
	}
	doc := gjson.ParseBytes(m)
	if !doc.Get("network-instance").IsArray() {
		t.Error("merged document missing network-instance")
	}
	if doc.Get("interface.#").Int() != 2 {
		t.Errorf("merged interface count = %d", doc.Get("interface.#").Int())
	}
}

func TestMerged_InvalidArtifact(t *testing.T) {
	a := &Artifacts{BGP: []byte(`{not json`)}
	if _, err := a.Merged(); err == nil {
		t.Error("expected error for invalid artifact")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	o := OptionsFromConfig(config.RenderConfig{NetworkInstance: "mgmt-vrf"})
	if o.NetworkInstance != "mgmt-vrf" {
		t.Errorf("NetworkInstance = %q", o.NetworkInstance)
	}
	if o.GroupName != intent.DefaultPeerGroup || o.ImportPolicy != "import-all" {
		t.Errorf("defaults lost: %+v", o)
	}
}
