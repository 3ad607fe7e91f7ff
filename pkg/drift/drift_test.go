package drift

import (
	"strings"
	"testing"

	"github.com/network-synapse/synapse/pkg/render"
)

func artifacts() *render.Artifacts {
	return &render.Artifacts{
		BGP: []byte(`{"network-instance":[{"name":"default","protocols":{"bgp":{
			"admin-state":"enable","autonomous-system":65000,"router-id":"10.1.0.1",
			"group":[{"group-name":"underlay"}],
			"neighbor":[
				{"peer-address":"10.0.0.1","peer-as":65001,"peer-group":"underlay"},
				{"peer-address":"10.0.0.3","peer-as":65002,"peer-group":"underlay"}
			]}}}]}`),
		Interfaces: []byte(`{"interface":[
			{"name":"ethernet-1/1","admin-state":"enable","mtu":9214,
			 "subinterface":[{"index":0,"ipv4":{"admin-state":"enable","address":[{"ip-prefix":"10.0.0.0/31"}]}}]},
			{"name":"loopback0","admin-state":"enable","mtu":9214}
		]}`),
	}
}

const inSync = `{
	"srl_nokia-network-instance:network-instance":[{"name":"default","protocols":{"srl_nokia-bgp:bgp":{
		"autonomous-system":65000,"router-id":"10.1.0.1",
		"neighbor":[
			{"peer-address":"10.0.0.1","peer-as":65001},
			{"peer-address":"10.0.0.3","peer-as":65002}
		]}}},{"name":"mgmt"}],
	"srl_nokia-interfaces:interface":[
		{"name":"ethernet-1/1","admin-state":"enable","mtu":9214,
		 "subinterface":[{"index":0,"ipv4":{"address":[{"ip-prefix":"10.0.0.0/31"}]}}]},
		{"name":"loopback0","admin-state":"enable","mtu":9214},
		{"name":"mgmt0","admin-state":"enable"}
	]
}`

func TestCompare_InSync(t *testing.T) {
	r := Compare(artifacts(), []byte(inSync))
	if r.HasDrift() {
		t.Errorf("unexpected drift:\n%s", r.String())
	}
	if r.String() != "No drift" {
		t.Errorf("String() = %q", r.String())
	}
}

func TestCompare_Differences(t *testing.T) {
	running := `{
		"network-instance":[{"name":"default","protocols":{"bgp":{
			"autonomous-system":65000,"router-id":"10.1.0.9",
			"neighbor":[
				{"peer-address":"10.0.0.1","peer-as":65005},
				{"peer-address":"10.0.0.7","peer-as":65007}
			]}}}],
		"interface":[
			{"name":"ethernet-1/1","admin-state":"disable","mtu":1500,
			 "subinterface":[{"index":0,"ipv4":{"address":[{"ip-prefix":"10.0.0.2/31"}]}}]}
		]
	}`
	r := Compare(artifacts(), []byte(running))

	want := []Item{
		{Path: "network-instance[name=default]/protocols/bgp/router-id", Type: ItemChanged, Intended: "10.1.0.1", Running: "10.1.0.9"},
		{Path: "network-instance[name=default]/protocols/bgp/neighbor[peer-address=10.0.0.1]/peer-as", Type: ItemChanged, Intended: "65001", Running: "65005"},
		{Path: "network-instance[name=default]/protocols/bgp/neighbor[peer-address=10.0.0.3]", Type: ItemMissing, Intended: "65002"},
		{Path: "network-instance[name=default]/protocols/bgp/neighbor[peer-address=10.0.0.7]", Type: ItemExtra, Running: "65007"},
		{Path: "interface[name=ethernet-1/1]/admin-state", Type: ItemChanged, Intended: "enable", Running: "disable"},
		{Path: "interface[name=ethernet-1/1]/mtu", Type: ItemChanged, Intended: "9214", Running: "1500"},
		{Path: "interface[name=ethernet-1/1]/subinterface[index=0]/ipv4/address", Type: ItemChanged, Intended: "10.0.0.0/31", Running: "10.0.0.2/31"},
		{Path: "interface[name=loopback0]", Type: ItemMissing},
	}
	if len(r.Items) != len(want) {
		t.Fatalf("got %d items, want %d:\n%s", len(r.Items), len(want), r.String())
	}
	for i, w := range want {
		if r.Items[i] != w {
			t.Errorf("item %d = %+v, want %+v", i, r.Items[i], w)
		}
	}
	if !strings.Contains(r.String(), "[MISSING] interface[name=loopback0]") {
		t.Errorf("String() = %s", r.String())
	}
}

func TestCompare_MissingBGP(t *testing.T) {
	r := Compare(artifacts(), []byte(`{"interface":[]}`))
	if len(r.Items) == 0 || r.Items[0].Path != "network-instance[name=default]/protocols/bgp" || r.Items[0].Type != ItemMissing {
		t.Errorf("items = %+v", r.Items)
	}
}

func TestCompare_MissingAddress(t *testing.T) {
	running := `{"network-instance":[{"name":"default","protocols":{"bgp":{
			"autonomous-system":65000,"router-id":"10.1.0.1",
			"neighbor":[{"peer-address":"10.0.0.1","peer-as":65001},{"peer-address":"10.0.0.3","peer-as":65002}]}}}],
		"interface":[{"name":"ethernet-1/1","admin-state":"enable","mtu":9214},
			{"name":"loopback0","admin-state":"enable","mtu":9214}]}`
	r := Compare(artifacts(), []byte(running))
	if len(r.Items) != 1 {
		t.Fatalf("items = %+v", r.Items)
	}
	if it := r.Items[0]; it.Type != ItemMissing || it.Intended != "10.0.0.0/31" {
		t.Errorf("item = %+v", it)
	}
}

func TestCompare_NilArtifacts(t *testing.T) {
	if r := Compare(nil, []byte(inSync)); r.HasDrift() {
		t.Error("nil artifacts reported drift")
	}
}
