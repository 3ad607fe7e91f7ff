// Package hygiene checks rendered artifacts before they are deployed.
//
// Checks work on the serialized JSON, not on the intent, so they see exactly
// what the device will receive. Every rule runs; all violations are reported
// together.
package hygiene

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/network-synapse/synapse/pkg/util"
)

// DefaultInterfacePrefixes are the interface names SR Linux accepts.
var DefaultInterfacePrefixes = []string{"ethernet-", "system", "lo"}

// Checker runs the artifact rules.
type Checker struct {
	prefixes []string
}

// NewChecker creates a checker. An empty prefix list uses
// DefaultInterfacePrefixes.
func NewChecker(prefixes []string) *Checker {
	if len(prefixes) == 0 {
		prefixes = DefaultInterfacePrefixes
	}
	return &Checker{prefixes: prefixes}
}

// violations collects rule failures for one artifact and logs each one.
type violations struct {
	check string
	b     util.ValidationBuilder
}

func (v *violations) addf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	util.WithField("check", v.check).Error(msg)
	v.b.AddError(msg)
}

// CheckBGP validates a BGP artifact.
func (c *Checker) CheckBGP(doc []byte) error {
	v := &violations{check: "bgp"}
	if !gjson.ValidBytes(doc) {
		v.addf("bgp artifact is not valid JSON")
		return v.b.Build()
	}

	instances := gjson.GetBytes(doc, "network-instance")
	if !instances.Exists() {
		return nil
	}

	for i, ni := range instances.Array() {
		name := ni.Get("name").String()
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		bgp := ni.Get("protocols.bgp")
		if !bgp.Exists() {
			continue
		}

		asn := bgp.Get("autonomous-system")
		if asn.Type != gjson.Number {
			v.addf("network-instance %s: autonomous-system missing or not a number", name)
		} else if err := util.ValidateASN(asn.Int()); err != nil || asn.Num != float64(asn.Int()) {
			v.addf("network-instance %s: autonomous-system %s out of range", name, asn.Raw)
		}

		if rid := bgp.Get("router-id"); rid.Exists() && !util.IsValidIPv4(rid.String()) {
			v.addf("network-instance %s: router-id %q is not an IPv4 address", name, rid.String())
		}

		if len(bgp.Get("group").Array()) == 0 {
			v.addf("network-instance %s: no BGP peer group defined", name)
		}

		for _, n := range bgp.Get("neighbor").Array() {
			addr := n.Get("peer-address").String()
			if !util.IsValidIP(addr) {
				v.addf("network-instance %s: invalid peer-address %q", name, addr)
			}
		}
	}
	return v.b.Build()
}

// CheckInterfaces validates an interface artifact.
func (c *Checker) CheckInterfaces(doc []byte) error {
	v := &violations{check: "interfaces"}
	if !gjson.ValidBytes(doc) {
		v.addf("interface artifact is not valid JSON")
		return v.b.Build()
	}

	ifaces := gjson.GetBytes(doc, "interface")
	if !ifaces.Exists() {
		return nil
	}

	for _, iface := range ifaces.Array() {
		name := iface.Get("name").String()
		if !c.allowedName(name) {
			v.addf("interface %q does not match allowed prefixes %v", name, c.prefixes)
		}
		if mtu := iface.Get("mtu"); mtu.Exists() {
			if err := util.ValidateMTU(int(mtu.Int())); err != nil || mtu.Type != gjson.Number {
				v.addf("interface %s: mtu %s out of range", name, mtu.Raw)
			}
		}
		for _, sub := range iface.Get("subinterface").Array() {
			for _, family := range []string{"ipv4", "ipv6"} {
				for _, a := range sub.Get(family + ".address").Array() {
					p := a.Get("ip-prefix").String()
					valid := util.IsValidIPv4CIDR(p)
					if family == "ipv6" {
						valid = util.IsValidCIDR(p) && !util.IsValidIPv4CIDR(p)
					}
					if !valid {
						v.addf("interface %s: invalid %s ip-prefix %q", name, family, p)
					}
				}
			}
		}
	}
	return v.b.Build()
}

// RunAll runs both checks and returns every violation. A nil return means
// the artifacts may be deployed.
func (c *Checker) RunAll(bgp, ifaces []byte) error {
	var b util.ValidationBuilder
	b.Merge(c.CheckBGP(bgp))
	b.Merge(c.CheckInterfaces(ifaces))
	if err := b.Build(); err != nil {
		return err
	}
	util.Debugf("hygiene: all checks passed")
	return nil
}

func (c *Checker) allowedName(name string) bool {
	for _, p := range c.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
