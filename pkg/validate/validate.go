// Package validate compares a device's operational state against intent
// after a deploy.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/network-synapse/synapse/pkg/device"
	"github.com/network-synapse/synapse/pkg/render"
	"github.com/network-synapse/synapse/pkg/util"
)

// InterfacePath is the state path read by CheckInterfaceState.
const InterfacePath = "/interface[name=*]"

// Detail statuses
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Detail kinds
const (
	KindState   = "state"
	KindMissing = "missing"
	KindError   = "error"
	KindNoData  = "no-data"
)

// Detail is the verdict for one neighbor or interface.
type Detail struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	Reason     string `json:"reason,omitempty"`
	AdminState string `json:"admin_state,omitempty"`
	OperState  string `json:"oper_state,omitempty"`
}

// ValidationResult is the outcome of one check. Passed is true only when
// every detail passed.
type ValidationResult struct {
	Check   string   `json:"check"`
	Passed  bool     `json:"passed"`
	Details []Detail `json:"details"`
}

// Missing returns the names of intended interfaces absent from the device.
func (r *ValidationResult) Missing() []string {
	var out []string
	for _, d := range r.Details {
		if d.Kind == KindMissing {
			out = append(out, d.Name)
		}
	}
	return out
}

// Failures returns the failed details.
func (r *ValidationResult) Failures() []Detail {
	var out []Detail
	for _, d := range r.Details {
		if d.Status == StatusFail {
			out = append(out, d)
		}
	}
	return out
}

func (r *ValidationResult) add(d Detail) {
	if d.Status == StatusFail {
		r.Passed = false
	}
	r.Details = append(r.Details, d)
}

// Validator reads state through a gateway.
type Validator struct {
	gw              device.Gateway
	networkInstance string
}

// NewValidator creates a validator for the given network instance.
func NewValidator(gw device.Gateway, networkInstance string) *Validator {
	if networkInstance == "" {
		networkInstance = "default"
	}
	return &Validator{gw: gw, networkInstance: networkInstance}
}

// BGPNeighborPath returns the neighbor state path for a network instance.
func BGPNeighborPath(networkInstance string) string {
	return fmt.Sprintf("/network-instance[name=%s]/protocols/bgp/neighbor", networkInstance)
}

// CheckBGPEstablished verifies every BGP neighbor is established. A read
// failure yields a failed result together with the error.
func (v *Validator) CheckBGPEstablished(ctx context.Context, address string) (*ValidationResult, error) {
	data, err := v.gw.ReadState(ctx, address, BGPNeighborPath(v.networkInstance))
	if err != nil {
		util.WithDevice(address).Errorf("bgp state read failed: %v", err)
		return connectionFailure("bgp", err), err
	}
	r := EvaluateBGPNeighbors(data)
	logResult(address, r)
	return r, nil
}

// CheckInterfaceState verifies each intended interface against the device.
func (v *Validator) CheckInterfaceState(ctx context.Context, address string, intended []render.InterfaceEntry) (*ValidationResult, error) {
	data, err := v.gw.ReadState(ctx, address, InterfacePath)
	if err != nil {
		util.WithDevice(address).Errorf("interface state read failed: %v", err)
		return connectionFailure("interfaces", err), err
	}
	r := EvaluateInterfaces(data, intended)
	logResult(address, r)
	return r, nil
}

func connectionFailure(check string, err error) *ValidationResult {
	return &ValidationResult{
		Check: check,
		Details: []Detail{{
			Name:   check,
			Status: StatusFail,
			Kind:   KindError,
			Reason: "connection error: " + err.Error(),
		}},
	}
}

func logResult(address string, r *ValidationResult) {
	log := util.WithDevice(address).WithField("check", r.Check)
	for _, d := range r.Details {
		if d.Status == StatusFail {
			log.Errorf("%s: %s", d.Name, d.Reason)
		} else {
			log.Debugf("%s: ok", d.Name)
		}
	}
	if r.Passed {
		log.Infof("all %d passed", len(r.Details))
	}
}

// EvaluateBGPNeighbors judges neighbor state data. The data may be a list,
// a {"neighbor": [...]} wrapper, a map keyed by address, or one neighbor.
func EvaluateBGPNeighbors(data []byte) *ValidationResult {
	r := &ValidationResult{Check: "bgp", Passed: true}
	peers := entries(data, "neighbor", "peer-address")
	if len(peers) == 0 {
		r.add(Detail{Name: "bgp", Status: StatusFail, Kind: KindNoData, Reason: "no BGP neighbor data"})
		return r
	}

	for _, p := range peers {
		addr := p.Get("peer-address").String()
		if addr == "" {
			addr = "unknown"
		}
		state := p.Get("session-state").String()
		if state == "" {
			state = "UNKNOWN"
		}
		d := Detail{Name: addr, Status: StatusPass, Kind: KindState, OperState: state}
		if !strings.EqualFold(state, "established") {
			d.Status = StatusFail
			d.Reason = fmt.Sprintf("session-state is %s", state)
		}
		r.add(d)
	}
	return r
}

// EvaluateInterfaces judges interface state data against intent. Each
// intended interface yields exactly one detail, in intent order.
func EvaluateInterfaces(data []byte, intended []render.InterfaceEntry) *ValidationResult {
	r := &ValidationResult{Check: "interfaces", Passed: true, Details: []Detail{}}
	if len(intended) == 0 {
		return r
	}

	observed := make(map[string]gjson.Result)
	for _, e := range entries(data, "interface", "name") {
		observed[e.Get("name").String()] = e
	}
	if len(observed) == 0 {
		r.add(Detail{Name: "interfaces", Status: StatusFail, Kind: KindNoData, Reason: "No interface state data"})
		return r
	}

	for _, want := range intended {
		got, ok := observed[want.Name]
		if !ok {
			r.add(Detail{Name: want.Name, Status: StatusFail, Kind: KindMissing, Reason: "interface not found on device"})
			continue
		}
		admin := got.Get("admin-state").String()
		oper := got.Get("oper-state").String()
		d := Detail{Name: want.Name, Status: StatusPass, Kind: KindState, AdminState: admin, OperState: oper}

		switch {
		case want.Enabled && admin == "enable" && oper != "up":
			d.Status = StatusFail
			d.Reason = fmt.Sprintf("admin-up but oper-down (oper-state %s)", oper)
		case want.Enabled && admin != "enable":
			d.Status = StatusFail
			d.Reason = fmt.Sprintf("admin-state is %s, expected enable", admin)
		case !want.Enabled && admin == "enable":
			d.Status = StatusFail
			d.Reason = "admin-state is enable, expected disable"
		}
		r.add(d)
	}
	return r
}

// entries normalizes list, wrapper, map and single-object forms into a
// list of objects. idField identifies a single object.
func entries(data []byte, wrapper, idField string) []gjson.Result {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return nil
	}
	return normalize(gjson.ParseBytes(data), wrapper, idField)
}

func normalize(v gjson.Result, wrapper, idField string) []gjson.Result {
	switch {
	case v.IsArray():
		return v.Array()
	case !v.IsObject():
		return nil
	case v.Get(idField).Exists():
		return []gjson.Result{v}
	}

	var inner gjson.Result
	var out []gjson.Result
	v.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if k == wrapper || strings.HasSuffix(k, ":"+wrapper) {
			inner = value
			return false
		}
		if value.IsObject() {
			if !value.Get(idField).Exists() {
				if stamped, err := sjson.Set(value.Raw, idField, k); err == nil {
					value = gjson.Parse(stamped)
				}
			}
			out = append(out, value)
		}
		return true
	})
	if inner.Exists() {
		return normalize(inner, wrapper, idField)
	}
	return out
}
