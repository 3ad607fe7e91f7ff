// Package server exposes the change saga over HTTP.
//
//	POST /v1/changes        run a change synchronously
//	GET  /v1/changes        list records (?device=, ?pending=true, ?limit=)
//	GET  /v1/changes/{id}   one journal record
//	GET  /healthz
//	GET  /metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/util"
)

// DefaultLockTTL bounds how long a crashed server can hold a device.
const DefaultLockTTL = 30 * time.Minute

// Runner runs one saga.
type Runner interface {
	Run(ctx context.Context, req change.Request) (*change.Record, error)
}

// Resolver finds a device's management address when a request omits it.
type Resolver func(ctx context.Context, hostname string) (string, error)

// Server serializes sagas per device and serves the journal.
type Server struct {
	runner   Runner
	journal  change.Journal
	locker   change.Locker
	resolve  Resolver
	gatherer prometheus.Gatherer
	lockTTL  time.Duration

	requests *prometheus.CounterVec
	seq      atomic.Uint64
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLocker replaces the in-process device lock.
func WithLocker(l change.Locker) Option { return func(s *Server) { s.locker = l } }

// WithResolver sets the address lookup used when a request has no address.
func WithResolver(r Resolver) Option { return func(s *Server) { s.resolve = r } }

// WithRegistry serves /metrics from reg and registers the request counter on it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.gatherer = reg
		reg.MustRegister(s.requests)
	}
}

// WithLockTTL sets the device lock lifetime.
func WithLockTTL(d time.Duration) Option { return func(s *Server) { s.lockTTL = d } }

// New creates a server.
func New(runner Runner, journal change.Journal, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		journal:  journal,
		locker:   change.NewMemoryLocker(),
		gatherer: prometheus.DefaultGatherer,
		lockTTL:  DefaultLockTTL,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handle("POST /v1/changes", s.createChange)
	s.handle("GET /v1/changes", s.listChanges)
	s.handle("GET /v1/changes/{id}", s.getChange)
	s.handle("GET /healthz", s.healthz)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. Request contexts
// derive from ctx, so sagas in flight are cancelled with it and run their
// compensation. Serve returns only after every handler has returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// No deadline: a restore may need several device timeouts
		if err := srv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		s.requests.WithLabelValues(r.Method, r.Pattern, strconv.Itoa(rec.status)).Inc()
		entry := util.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
		switch {
		case rec.status >= 500:
			entry.Error("http_request")
		case rec.status >= 400:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	})
}

// ChangeResponse is the body of POST /v1/changes.
type ChangeResponse struct {
	Record *change.Record `json:"record,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Warnf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// outcomeStatus maps how a saga ended onto a response code.
func outcomeStatus(o change.Outcome) int {
	switch o {
	case change.OutcomeSucceeded:
		return http.StatusOK
	case change.OutcomeAborted, change.OutcomeHygieneRejected:
		return http.StatusUnprocessableEntity
	case change.OutcomeRolledBack:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, util.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrDeviceLocked):
		return http.StatusConflict
	case util.IsRetryable(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) createChange(w http.ResponseWriter, r *http.Request) {
	var req change.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Hostname == "" {
		writeError(w, http.StatusBadRequest, util.NewValidationError("hostname is required"))
		return
	}
	if req.Address == "" && s.resolve != nil {
		addr, err := s.resolve(r.Context(), req.Hostname)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		req.Address = addr
	}

	holder := fmt.Sprintf("server-%d", s.seq.Add(1))
	if err := s.locker.Acquire(r.Context(), req.Hostname, holder, s.lockTTL); err != nil {
		writeError(w, errorStatus(err), fmt.Errorf("%s: %w", req.Hostname, err))
		return
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(r.Context()), req.Hostname, holder); err != nil {
			util.WithDevice(req.Hostname).Warnf("release lock: %v", err)
		}
	}()

	rec, err := s.runner.Run(r.Context(), req)
	if rec == nil {
		writeError(w, errorStatus(err), err)
		return
	}
	resp := ChangeResponse{Record: rec}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, outcomeStatus(rec.Outcome), resp)
}

func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := change.JournalFilter{
		Device:      q.Get("device"),
		PendingOnly: q.Get("pending") == "true",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}

	records, err := s.journal.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]change.Summary, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getChange(w http.ResponseWriter, r *http.Request) {
	rec, err := s.journal.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.journal.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "journal": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
