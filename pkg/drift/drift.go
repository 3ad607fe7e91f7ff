// Package drift compares rendered intent with a device's running config.
package drift

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/network-synapse/synapse/pkg/render"
)

// ItemType classifies one difference.
type ItemType string

const (
	// ItemMissing is intended but absent on the device.
	ItemMissing ItemType = "missing"
	// ItemChanged is present on both sides with different values.
	ItemChanged ItemType = "changed"
	// ItemExtra is on the device but not intended.
	ItemExtra ItemType = "extra"
)

// Item is one difference, addressed by a gNMI-style path.
type Item struct {
	Path     string   `json:"path"`
	Type     ItemType `json:"type"`
	Intended string   `json:"intended,omitempty"`
	Running  string   `json:"running,omitempty"`
}

// Report is the ordered result of Compare.
type Report struct {
	Device string `json:"device,omitempty"`
	Items  []Item `json:"items"`
}

// HasDrift reports whether any difference was found.
func (r *Report) HasDrift() bool {
	return len(r.Items) > 0
}

func (r *Report) add(path string, t ItemType, intended, running string) {
	r.Items = append(r.Items, Item{Path: path, Type: t, Intended: intended, Running: running})
}

// String renders one line per item.
func (r *Report) String() string {
	if !r.HasDrift() {
		return "No drift"
	}
	var sb strings.Builder
	for _, it := range r.Items {
		var tag string
		switch it.Type {
		case ItemMissing:
			tag = "[MISSING]"
		case ItemChanged:
			tag = "[CHANGED]"
		case ItemExtra:
			tag = "[EXTRA]"
		}
		sb.WriteString(fmt.Sprintf("  %-9s %s", tag, it.Path))
		switch it.Type {
		case ItemChanged:
			sb.WriteString(fmt.Sprintf(": intended %s, running %s", it.Intended, it.Running))
		case ItemMissing:
			if it.Intended != "" {
				sb.WriteString(fmt.Sprintf(": intended %s", it.Intended))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Compare reports how running differs from the rendered artifacts. Running
// interfaces that are not intended are ignored, extra BGP neighbors are not.
// Keys may carry a YANG module prefix on the device side.
func Compare(artifacts *render.Artifacts, running []byte) Report {
	var r Report
	if artifacts == nil {
		return r
	}
	root := gjson.ParseBytes(running)
	compareBGP(&r, gjson.ParseBytes(artifacts.BGP), root)
	compareInterfaces(&r, gjson.ParseBytes(artifacts.Interfaces), root)
	return r
}

func compareBGP(r *Report, intended, running gjson.Result) {
	runningNI := index(field(running, "network-instance"), "name")

	for _, ni := range field(intended, "network-instance").Array() {
		name := ni.Get("name").String()
		base := fmt.Sprintf("network-instance[name=%s]/protocols/bgp", name)
		want := ni.Get("protocols.bgp")
		if !want.Exists() {
			continue
		}

		have := field(field(runningNI[name], "protocols"), "bgp")
		if !have.Exists() {
			r.add(base, ItemMissing, "", "")
			continue
		}
		leaf(r, base+"/autonomous-system", want.Get("autonomous-system"), field(have, "autonomous-system"))
		leaf(r, base+"/router-id", want.Get("router-id"), field(have, "router-id"))

		haveNbr := index(field(have, "neighbor"), "peer-address")
		seen := make(map[string]bool)
		for _, n := range want.Get("neighbor").Array() {
			addr := n.Get("peer-address").String()
			seen[addr] = true
			path := fmt.Sprintf("%s/neighbor[peer-address=%s]", base, addr)
			got, ok := haveNbr[addr]
			if !ok {
				r.add(path, ItemMissing, n.Get("peer-as").String(), "")
				continue
			}
			leaf(r, path+"/peer-as", n.Get("peer-as"), field(got, "peer-as"))
		}
		for _, n := range field(have, "neighbor").Array() {
			if addr := field(n, "peer-address").String(); !seen[addr] {
				r.add(fmt.Sprintf("%s/neighbor[peer-address=%s]", base, addr), ItemExtra, "", field(n, "peer-as").String())
			}
		}
	}
}

func compareInterfaces(r *Report, intended, running gjson.Result) {
	runningIf := index(field(running, "interface"), "name")

	for _, want := range field(intended, "interface").Array() {
		name := want.Get("name").String()
		path := fmt.Sprintf("interface[name=%s]", name)
		have, ok := runningIf[name]
		if !ok {
			r.add(path, ItemMissing, "", "")
			continue
		}
		leaf(r, path+"/admin-state", want.Get("admin-state"), field(have, "admin-state"))
		leaf(r, path+"/mtu", want.Get("mtu"), field(have, "mtu"))

		haveSub := index(field(have, "subinterface"), "index")
		for _, sub := range want.Get("subinterface").Array() {
			idx := sub.Get("index").String()
			subPath := fmt.Sprintf("%s/subinterface[index=%s]/ipv4/address", path, idx)
			wantAddr := prefixes(sub.Get("ipv4"))
			haveAddr := prefixes(field(haveSub[idx], "ipv4"))
			if wantAddr != haveAddr {
				if haveAddr == "" {
					r.add(subPath, ItemMissing, wantAddr, "")
				} else {
					r.add(subPath, ItemChanged, wantAddr, haveAddr)
				}
			}
		}
	}
}

// leaf records a missing or changed scalar.
func leaf(r *Report, path string, want, have gjson.Result) {
	if !want.Exists() {
		return
	}
	if !have.Exists() {
		r.add(path, ItemMissing, want.String(), "")
		return
	}
	if !strings.EqualFold(want.String(), have.String()) {
		r.add(path, ItemChanged, want.String(), have.String())
	}
}

// prefixes joins the ip-prefix values of an ipv4 container.
func prefixes(ipv4 gjson.Result) string {
	var out []string
	for _, a := range field(ipv4, "address").Array() {
		out = append(out, field(a, "ip-prefix").String())
	}
	return strings.Join(out, ",")
}

// field returns obj[name], falling back to a module-prefixed key
// ("srl_nokia-interfaces:interface").
func field(obj gjson.Result, name string) gjson.Result {
	if !obj.IsObject() {
		return gjson.Result{}
	}
	if v := obj.Get(gjson.Escape(name)); v.Exists() {
		return v
	}
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if strings.HasSuffix(k.String(), ":"+name) {
			found = v
			return false
		}
		return true
	})
	return found
}

// index keys list entries by one of their fields.
func index(list gjson.Result, key string) map[string]gjson.Result {
	m := make(map[string]gjson.Result)
	for _, e := range list.Array() {
		m[field(e, key).String()] = e
	}
	return m
}
