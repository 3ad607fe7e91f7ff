package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/network-synapse/synapse/pkg/intent"
)

// Artifacts are the two device-native JSON documents for one device.
type Artifacts struct {
	BGP        json.RawMessage `json:"bgp"`
	Interfaces json.RawMessage `json:"interfaces"`
}

// SR Linux document shapes

type srlBGPDoc struct {
	NetworkInstance []srlNetworkInstance `json:"network-instance"`
}

type srlNetworkInstance struct {
	Name      string `json:"name"`
	Protocols struct {
		BGP srlBGP `json:"bgp"`
	} `json:"protocols"`
}

type srlBGP struct {
	AdminState       string           `json:"admin-state"`
	AutonomousSystem int64            `json:"autonomous-system"`
	RouterID         string           `json:"router-id"`
	AfiSafi          []srlAfiSafi     `json:"afi-safi"`
	Group            []srlBGPGroup    `json:"group"`
	Neighbor         []srlBGPNeighbor `json:"neighbor"`
}

type srlAfiSafi struct {
	Name       string `json:"afi-safi-name"`
	AdminState string `json:"admin-state"`
}

type srlBGPGroup struct {
	GroupName    string `json:"group-name"`
	ExportPolicy string `json:"export-policy,omitempty"`
	ImportPolicy string `json:"import-policy,omitempty"`
}

type srlBGPNeighbor struct {
	PeerAddress string `json:"peer-address"`
	PeerAS      int64  `json:"peer-as"`
	PeerGroup   string `json:"peer-group"`
	Description string `json:"description,omitempty"`
}

type srlInterfaceDoc struct {
	Interface []srlInterface `json:"interface"`
}

type srlInterface struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	AdminState   string            `json:"admin-state"`
	MTU          int               `json:"mtu"`
	Subinterface []srlSubinterface `json:"subinterface,omitempty"`
}

type srlSubinterface struct {
	Index      int     `json:"index"`
	AdminState string  `json:"admin-state"`
	IPv4       srlIPv4 `json:"ipv4"`
}

type srlIPv4 struct {
	AdminState string       `json:"admin-state"`
	Address    []srlAddress `json:"address"`
}

type srlAddress struct {
	IPPrefix string `json:"ip-prefix"`
}

func adminState(enabled bool) string {
	if enabled {
		return "enable"
	}
	return "disable"
}

// EncodeBGP renders the BGP artifact. Groups are the view's group followed
// by any other group a peer references, in first-seen order.
func EncodeBGP(v BGPView) ([]byte, error) {
	bgp := srlBGP{
		AdminState:       "enable",
		AutonomousSystem: v.LocalAS,
		RouterID:         v.RouterID,
		AfiSafi:          []srlAfiSafi{{Name: "ipv4-unicast", AdminState: "enable"}},
		Group:            []srlBGPGroup{},
		Neighbor:         []srlBGPNeighbor{},
	}

	seen := make(map[string]bool)
	addGroup := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		bgp.Group = append(bgp.Group, srlBGPGroup{
			GroupName:    name,
			ExportPolicy: v.ExportPolicy,
			ImportPolicy: v.ImportPolicy,
		})
	}
	addGroup(v.GroupName)

	for _, p := range v.Peers {
		addGroup(p.Group)
		bgp.Neighbor = append(bgp.Neighbor, srlBGPNeighbor{
			PeerAddress: p.Address,
			PeerAS:      p.PeerAS,
			PeerGroup:   p.Group,
			Description: p.Description,
		})
	}

	ni := srlNetworkInstance{Name: v.NetworkInstance}
	ni.Protocols.BGP = bgp
	return json.Marshal(srlBGPDoc{NetworkInstance: []srlNetworkInstance{ni}})
}

// EncodeInterfaces renders the interface artifact. An interface without an
// address gets no subinterface.
func EncodeInterfaces(v InterfaceView) ([]byte, error) {
	doc := srlInterfaceDoc{Interface: make([]srlInterface, 0, len(v.Interfaces))}
	for _, e := range v.Interfaces {
		iface := srlInterface{
			Name:        e.Name,
			Description: e.Description,
			AdminState:  adminState(e.Enabled),
			MTU:         e.MTU,
		}
		if e.Address != "" {
			iface.Subinterface = []srlSubinterface{{
				Index:      e.SubinterfaceIndex,
				AdminState: "enable",
				IPv4: srlIPv4{
					AdminState: "enable",
					Address:    []srlAddress{{IPPrefix: e.Address}},
				},
			}}
		}
		doc.Interface = append(doc.Interface, iface)
	}
	return json.Marshal(doc)
}

// Render derives both views of d and encodes them.
func (t *Transformer) Render(d *intent.DeviceIntent) (*Artifacts, error) {
	if d == nil {
		return nil, fmt.Errorf("render: nil intent")
	}
	bgp, err := EncodeBGP(t.BGPView(d))
	if err != nil {
		return nil, fmt.Errorf("render %s bgp: %w", d.Name, err)
	}
	ifaces, err := EncodeInterfaces(t.InterfaceView(d))
	if err != nil {
		return nil, fmt.Errorf("render %s interfaces: %w", d.Name, err)
	}
	return &Artifacts{BGP: bgp, Interfaces: ifaces}, nil
}

// Merged combines the artifacts into the single document sent with SET /.
// Top-level keys of later artifacts replace those of earlier ones.
func (a *Artifacts) Merged() ([]byte, error) {
	merged := []byte(`{}`)
	for _, doc := range [][]byte{a.BGP, a.Interfaces} {
		if len(doc) == 0 {
			continue
		}
		if !gjson.ValidBytes(doc) {
			return nil, fmt.Errorf("merge: artifact is not valid JSON")
		}
		var err error
		gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
			merged, err = sjson.SetRawBytes(merged, escapePath(key.String()), []byte(value.Raw))
			return err == nil
		})
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	return merged, nil
}

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
