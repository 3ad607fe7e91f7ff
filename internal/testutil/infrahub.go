package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
)

// GraphQL bodies for the spine01 reference device: AS 65000, loopback
// 10.1.0.1/32, fabric ethernet-1/1 at 10.0.0.0/31, management mgmt0, and one
// session to AS 65001 at 10.0.0.1/31.
const (
	Spine01DeviceResponse = `{"data":{"DcimDevice":{"edges":[{"node":{
  "id":"device-spine01-id",
  "name":{"value":"spine01"},
  "description":{"value":"Spine 01"},
  "management_ip":{"value":"172.20.20.3/24"},
  "lab_node_name":{"value":"clab-synapse-spine01"},
  "role":{"value":"spine"},
  "status":{"value":"active"},
  "asn":{"node":{"asn":{"value":65000},"name":{"value":"AS65000"}}}}}]}}}`

	Spine01InterfacesResponse = `{"data":{"InterfacePhysical":{"edges":[
  {"node":{"id":"i1","name":{"value":"ethernet-1/1"},"description":{"value":"to leaf01"},"mtu":{"value":9214},"role":{"value":"fabric"},
    "ip_addresses":{"edges":[{"node":{"address":{"value":"10.0.0.0/31"}}}]}}},
  {"node":{"id":"i2","name":{"value":"loopback0"},"description":{"value":"router id"},"mtu":{"value":null},"role":{"value":"loopback"},
    "ip_addresses":{"edges":[{"node":{"address":{"value":"10.1.0.1/32"}}}]}}},
  {"node":{"id":"i3","name":{"value":"mgmt0"},"description":{"value":"oob"},"mtu":{"value":1500},"role":{"value":"management"},
    "ip_addresses":{"edges":[{"node":{"address":{"value":"172.20.20.3/24"}}}]}}}]}}}`

	Spine01BGPResponse = `{"data":{"RoutingBGPSession":{"edges":[{"node":{
  "id":"s1",
  "description":{"value":"spine01 to leaf01"},
  "session_type":{"value":"EXTERNAL"},
  "role":{"value":"backbone"},
  "status":{"value":"active"},
  "local_as":{"node":{"asn":{"value":65000}}},
  "remote_as":{"node":{"asn":{"value":65001}}},
  "local_ip":{"node":{"address":{"value":"10.0.0.0/31"}}},
  "remote_ip":{"node":{"address":{"value":"10.0.0.1/31"}}},
  "peer_group":{"node":{"name":{"value":"underlay"}}}}}]}}}`

	DeviceListResponse = `{"data":{"DcimDevice":{"edges":[
  {"node":{"name":{"value":"spine01"}}},
  {"node":{"name":{"value":"leaf01"}}}]}}}`

	EmptyDeviceResponse = `{"data":{"DcimDevice":{"edges":[]}}}`

	MutationOKResponse = `{"data":{"DcimDeviceUpdate":{"ok":true,"object":{"id":"device-spine01-id","display_label":"spine01"}}}}`
)

// Call is one GraphQL request received by FakeInfrahub.
type Call struct {
	Operation     string
	Variables     map[string]interface{}
	APIKey        string
	Authorization string
}

type fakeResponse struct {
	status int
	body   string
}

// FakeInfrahub is an httptest server answering the fixed Infrahub
// queries by operation name.
type FakeInfrahub struct {
	*httptest.Server

	mu         sync.Mutex
	responses  map[string][]fakeResponse
	calls      []Call
	logins     int
	loginToken string
	requireTok string
}

var operationName = regexp.MustCompile(`^\s*(?:query|mutation)\s+(\w+)`)

// NewFakeInfrahub starts a server preloaded with the spine01 fixtures.
func NewFakeInfrahub(t *testing.T) *FakeInfrahub {
	t.Helper()
	f := &FakeInfrahub{
		responses:  make(map[string][]fakeResponse),
		loginToken: "fake-access-token",
	}
	f.Respond("ListDevices", http.StatusOK, DeviceListResponse)
	f.Respond("GetDevice", http.StatusOK, Spine01DeviceResponse)
	f.Respond("GetDeviceInterfaces", http.StatusOK, Spine01InterfacesResponse)
	f.Respond("GetDeviceBGPSessions", http.StatusOK, Spine01BGPResponse)
	f.Respond("UpdateDeviceStatus", http.StatusOK, MutationOKResponse)

	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Respond sets the reply for an operation, replacing any queued replies.
func (f *FakeInfrahub) Respond(op string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = []fakeResponse{{status, body}}
}

// Queue appends a reply. Queued replies are consumed in order; the last
// one repeats.
func (f *FakeInfrahub) Queue(op string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = append(f.responses[op], fakeResponse{status, body})
}

// RequireBearer makes /graphql answer 401 unless the bearer token matches.
func (f *FakeInfrahub) RequireBearer(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requireTok = token
}

// SetLoginToken sets the access_token handed out by /api/auth/login. An
// empty token makes login fail with 401.
func (f *FakeInfrahub) SetLoginToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginToken = token
}

// Calls returns the GraphQL calls received for op, or all calls when op is
// empty.
func (f *FakeInfrahub) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Operation == op {
			out = append(out, c)
		}
	}
	return out
}

// Logins returns how many login requests were received.
func (f *FakeInfrahub) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *FakeInfrahub) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/api/auth/login":
		f.logins++
		if f.loginToken == "" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"invalid credentials"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": f.loginToken, "refresh_token": "r"})
		return
	case "/graphql":
	default:
		http.NotFound(w, r)
		return
	}

	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	op := ""
	if m := operationName.FindStringSubmatch(req.Query); m != nil {
		op = m[1]
	}
	f.calls = append(f.calls, Call{
		Operation:     op,
		Variables:     req.Variables,
		APIKey:        r.Header.Get("X-INFRAHUB-KEY"),
		Authorization: r.Header.Get("Authorization"),
	})

	if f.requireTok != "" && r.Header.Get("Authorization") != "Bearer "+f.requireTok {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"token expired"}`)
		return
	}

	queue := f.responses[op]
	if len(queue) == 0 {
		io.WriteString(w, `{"errors":[{"message":"unknown operation `+op+`"}]}`)
		return
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[op] = queue[1:]
	}
	w.WriteHeader(resp.status)
	io.WriteString(w, resp.body)
}
