package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/api"
	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := env.Collector()

		if cfg.Policy.Watch && cfg.Policy.Path != "" {
			debounce := time.Duration(cfg.Policy.DebounceMsec) * time.Millisecond
			go func() {
				if err := env.Policies.Watch(ctx, cfg.Policy.Path, debounce); err != nil && !errors.Is(err, context.Canceled) {
					zap.L().Error("policy watcher stopped", zap.Error(err))
				}
			}()
		}

		if cfg.Monitoring.Enabled {
			sink := metrics.MultiSink{metrics.NewPrometheusSink(prometheus.DefaultRegisterer), metrics.NewLogSink()}
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), sink, env.Policies.Current, cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(api.Deps{
				Analyzer:  env.Pipeline,
				Audits:    env.Store,
				Collector: collector,
				Policies:  env.Policies,
				Health:    env.Store,
			}, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
