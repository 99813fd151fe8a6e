package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
	"github.com/systmms/vaultcache/internal/manager"
	"github.com/systmms/vaultcache/internal/metrics"
	"github.com/systmms/vaultcache/internal/vault"
	"github.com/systmms/vaultcache/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand(cfg *config.Config, extra ...manager.Option) *cobra.Command {
	var (
		service     string
		name        string
		listen      string
		metricsPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo endpoint behind the secrets middleware",
		Long: `Start an HTTP server whose root handler is wrapped by the secrets
middleware. The handler reports which keys were loaded; values are never
returned. Prometheus metrics are served on /metrics and the Vault session
state on /healthz.

Examples:
  vaultcache serve --service slack-bot --listen :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			mopts := append([]manager.Option{manager.WithMetrics(m)}, extra...)
			mgr, caller, opts, err := setup(cfg, service, name, mopts)
			if err != nil {
				return err
			}
			defer mgr.Reset()

			srvCfg := metrics.DefaultServerConfig()
			srvCfg.Addr = listen
			srvCfg.MetricsPath = metricsPath
			srv := newServer(srvCfg, reg, mgr, caller, opts, cfg.Logger)

			if err := srv.Start(); err != nil {
				return err
			}
			cfg.Logger.Info("Listening on %s", srv.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			cfg.Logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service name (default from config or "+config.EnvService+")")
	cmd.Flags().StringVar(&name, "name", "", "Explicit secret path, overrides {environment}/{service}")
	cmd.Flags().StringVar(&listen, "listen", ":8080", "Listen address")
	cmd.Flags().StringVar(&metricsPath, "metrics-path", "/metrics", "Path of the Prometheus endpoint")

	return cmd
}

func newServer(srvCfg metrics.ServerConfig, reg *prometheus.Registry, mgr *manager.Manager, caller config.Caller, opts config.Options, logger *logging.Logger) *metrics.Server {
	app := middleware.Secrets(mgr, middleware.Options{
		Service: caller.ServiceName,
		Load:    opts,
		Logger:  logger,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"service": caller.ServiceName,
			"keys":    sortedKeys(middleware.FromContext(r.Context())),
		})
	}))

	health := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := mgr.State()
		status := http.StatusOK
		if state == vault.StateExpired {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{
			"state":       state.String(),
			"environment": mgr.Environment(),
		})
	})

	return metrics.NewServer(srvCfg, reg, app, health, logger)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
