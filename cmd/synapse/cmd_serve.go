package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/network-synapse/synapse/pkg/change"
	"github.com/network-synapse/synapse/pkg/server"
	"github.com/network-synapse/synapse/pkg/util"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the change API over HTTP",
	Long: `Serve the change API over HTTP.

  POST /v1/changes        {"hostname": "...", "address": "..."}
  GET  /v1/changes        ?device=&pending=true&limit=
  GET  /v1/changes/{id}
  GET  /healthz
  GET  /metrics

One change runs per device at a time. With the redis journal backend the
device lock is shared by every synapse process using the same Redis.

Examples:
  synapse serve
  synapse serve --listen 127.0.0.1:9400`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr := serveListen
		if addr == "" {
			addr = app.cfg.Server.Listen
		}

		journal, err := change.NewJournal(app.cfg.Journal)
		if err != nil {
			return err
		}
		defer journal.Close()

		gw, err := newGateway()
		if err != nil {
			return err
		}
		client := newIntentClient()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
		orch := newOrchestrator(client, gw, journal, reg)

		opts := []server.Option{
			server.WithRegistry(reg),
			server.WithResolver(func(ctx context.Context, hostname string) (string, error) {
				return resolveAddress(ctx, client, hostname, "")
			}),
		}
		if locker, ok := journal.(change.Locker); ok {
			opts = append(opts, server.WithLocker(locker))
		}

		if pending, err := orch.Pending(ctx); err != nil {
			util.Warnf("listing pending changes: %v", err)
		} else {
			for _, r := range pending {
				util.WithChange(r.ID, r.Hostname).Warnf("unfinished change in phase %s: run 'synapse change recover %s'", r.Phase, r.ID)
			}
		}

		util.Infof("synapse listening on %s (journal: %s)", addr, app.cfg.Journal.Backend)
		return server.New(orch, journal, opts...).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, :9400)")
}
