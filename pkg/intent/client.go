package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/util"
	"github.com/network-synapse/synapse/pkg/version"
)

// QueryError is a non-retryable failure of a request the backend answered:
// a client-side HTTP status, an undecodable body, or a refused mutation.
type QueryError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("infrahub %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("infrahub %s: %s", e.Op, e.Message)
}

// Client queries the Infrahub GraphQL API.
//
// With a token configured every request carries X-INFRAHUB-KEY. Without
// one, the client logs in with the configured credentials on first use
// and sends the returned bearer token. A 401 clears the bearer token and
// logs in again once.
type Client struct {
	baseURL  string
	token    string
	username string
	password string
	user     string
	http     *http.Client

	mu       sync.Mutex
	bearer   string
	loggedIn bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuditUser sets the user recorded on status-change audit events.
func WithAuditUser(user string) Option {
	return func(c *Client) { c.user = user }
}

// NewClient creates a client for the configured Infrahub instance.
func NewClient(cfg config.InfrahubConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		token:    cfg.Token,
		username: cfg.Username,
		password: cfg.Password,
		user:     "synapse",
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDevices returns every device name in source order.
func (c *Client) ListDevices(ctx context.Context) ([]string, error) {
	var data listDevicesData
	if err := c.graphql(ctx, "list devices", queryListDevices, nil, &data); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(data.DcimDevice.Edges))
	for _, e := range data.DcimDevice.Edges {
		names = append(names, e.Node.Name.Value)
	}
	return names, nil
}

// GetDevice returns the identity of one device without its interfaces or
// sessions.
func (c *Client) GetDevice(ctx context.Context, hostname string) (*DeviceIntent, error) {
	var data getDeviceData
	vars := map[string]interface{}{"hostname": hostname}
	if err := c.graphql(ctx, "get device", queryGetDevice, vars, &data); err != nil {
		return nil, err
	}
	if len(data.DcimDevice.Edges) == 0 {
		return nil, util.NewNotFoundError("device", hostname)
	}
	return data.DcimDevice.Edges[0].Node.toIntent(), nil
}

// GetInterfaces returns the interfaces attached to a device id.
func (c *Client) GetInterfaces(ctx context.Context, deviceID string) ([]InterfaceIntent, error) {
	var data getInterfacesData
	vars := map[string]interface{}{"device_ids": []string{deviceID}}
	if err := c.graphql(ctx, "get interfaces", queryGetInterfaces, vars, &data); err != nil {
		return nil, err
	}
	out := make([]InterfaceIntent, 0, len(data.InterfacePhysical.Edges))
	for _, e := range data.InterfacePhysical.Edges {
		out = append(out, e.Node.toIntent())
	}
	return out, nil
}

// GetBGPSessions returns the BGP sessions attached to a device id.
func (c *Client) GetBGPSessions(ctx context.Context, deviceID string) ([]BGPSessionIntent, error) {
	var data getBGPSessionsData
	vars := map[string]interface{}{"device_ids": []string{deviceID}}
	if err := c.graphql(ctx, "get bgp sessions", queryGetBGPSessions, vars, &data); err != nil {
		return nil, err
	}
	out := make([]BGPSessionIntent, 0, len(data.RoutingBGPSession.Edges))
	for _, e := range data.RoutingBGPSession.Edges {
		out = append(out, e.Node.toIntent())
	}
	return out, nil
}

// Fetch returns the full declared state of a device: identity, interfaces,
// BGP sessions and the router id derived from its loopback.
func (c *Client) Fetch(ctx context.Context, hostname string) (*DeviceIntent, error) {
	device, err := c.GetDevice(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if device.Interfaces, err = c.GetInterfaces(ctx, device.ID); err != nil {
		return nil, err
	}
	if device.BGPSessions, err = c.GetBGPSessions(ctx, device.ID); err != nil {
		return nil, err
	}

	routerID, ok := DeriveRouterID(device.Interfaces)
	if !ok {
		return nil, util.NewMissingRouterIDError(hostname)
	}
	device.RouterID = routerID

	util.WithDevice(hostname).Debugf("fetched intent: %d interfaces, %d bgp sessions, router-id %s",
		len(device.Interfaces), len(device.BGPSessions), routerID)
	return device, nil
}

// DeriveRouterID returns the bare address of the first loopback interface
// that carries one.
func DeriveRouterID(ifaces []InterfaceIntent) (string, bool) {
	for _, iface := range ifaces {
		if iface.Role == RoleLoopback && iface.Address != "" {
			return util.StripPrefix(iface.Address), true
		}
	}
	return "", false
}

// UpdateDeviceStatus sets the status of a device and returns the status it
// had before. The status is checked before any request is made.
func (c *Client) UpdateDeviceStatus(ctx context.Context, hostname, status string) (string, error) {
	if !IsValidStatus(status) {
		return "", util.NewValidationError(fmt.Sprintf("invalid device status %q: must be one of %s",
			status, strings.Join(ValidStatuses, ", ")))
	}

	device, err := c.GetDevice(ctx, hostname)
	if err != nil {
		return "", err
	}

	vars := map[string]interface{}{
		"data": map[string]interface{}{
			"id":     device.ID,
			"status": map[string]string{"value": status},
		},
	}
	var data updateDeviceData
	if err := c.graphql(ctx, "update device status", mutationUpdateDeviceStatus, vars, &data); err != nil {
		return "", err
	}
	if !data.DcimDeviceUpdate.OK {
		return "", &QueryError{Op: "update device status", Message: fmt.Sprintf("mutation not applied for %s", hostname)}
	}

	util.WithDevice(hostname).Infof("device status updated: %s -> %s", device.Status, status)
	audit.Log(audit.NewEvent(c.user, hostname, audit.OpDeviceStatus).
		WithDetail("old_status", device.Status).
		WithDetail("new_status", status).
		WithSuccess())

	return device.Status, nil
}

func (c *Client) graphql(ctx context.Context, op, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return &QueryError{Op: op, Message: err.Error()}
	}

	for attempt := 0; ; attempt++ {
		if err := c.ensureAuth(ctx); err != nil {
			return err
		}

		status, payload, err := c.post(ctx, "/graphql", body, true)
		if err != nil {
			return util.NewSourceUnavailableError(op, err)
		}
		if status == http.StatusUnauthorized && c.token == "" && attempt == 0 {
			c.resetAuth()
			continue
		}
		if err := classifyStatus(op, status, payload); err != nil {
			return err
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []graphqlError  `json:"errors"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return &QueryError{Op: op, Message: "decoding response: " + err.Error()}
		}
		if len(envelope.Errors) > 0 {
			msgs := make([]string, len(envelope.Errors))
			for i, e := range envelope.Errors {
				msgs[i] = e.Message
			}
			return util.NewSourceUnavailableError(op, fmt.Errorf("GraphQL errors: %s", strings.Join(msgs, "; ")))
		}
		if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
			return &QueryError{Op: op, Message: "response has no data"}
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &QueryError{Op: op, Message: "decoding data: " + err.Error()}
		}
		return nil
	}
}

func classifyStatus(op string, status int, payload []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return util.NewSourceUnavailableError(op, fmt.Errorf("HTTP %d: %s", status, msg))
	}
	return &QueryError{Op: op, StatusCode: status, Message: msg}
}

// ensureAuth logs in once when no API token is configured. A login the
// server refuses is logged and the client continues unauthenticated.
func (c *Client) ensureAuth(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}

	creds, _ := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	status, payload, err := c.post(ctx, "/api/auth/login", creds, false)
	if err != nil {
		return util.NewSourceUnavailableError("login", err)
	}
	c.loggedIn = true

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if status != http.StatusOK || json.Unmarshal(payload, &resp) != nil || resp.AccessToken == "" {
		util.Warnf("infrahub: login as %s refused (HTTP %d); continuing without bearer token", c.username, status)
		return nil
	}
	c.bearer = resp.AccessToken
	return nil
}

func (c *Client) resetAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = ""
	c.loggedIn = false
}

func (c *Client) post(ctx context.Context, path string, body []byte, authed bool) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if authed {
		if c.token != "" {
			req.Header.Set("X-INFRAHUB-KEY", c.token)
		} else {
			c.mu.Lock()
			bearer := c.bearer
			c.mu.Unlock()
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}
