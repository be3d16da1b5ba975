// Command cockpit-worker runs the per-device task execution pool: it
// consumes device tasks published by cockpit-server/cockpit-scheduler off
// the broker's queues and executes them via the registered job_type
// handlers.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/bootstrap"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
)

var metricsAddr string

func main() {
	root := &cobra.Command{
		Use:   "cockpit-worker",
		Short: "Run the Cockpit device task worker pool",
		RunE:  run,
	}
	root.Flags().StringVar(&metricsAddr, "metrics-listen", ":9091", "address to serve /metrics on")

	if err := root.Execute(); err != nil {
		cockpitlog.WithComponent("cockpit-worker").WithError(err).Fatal("worker exited")
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := cockpitlog.WithComponent("cockpit-worker")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	queueCfg, err := app.Settings.LoadQueueConfig(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	for _, c := range app.Pool.Collector() {
		registry.MustRegister(c)
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.WithField("addr", metricsAddr).Info("metrics listening")
		_ = http.ListenAndServe(metricsAddr, mux)
	}()

	logger.WithField("queues", queueCfg.Queues).Info("worker pool starting")
	app.Pool.Start(ctx, queueCfg.Queues)

	<-ctx.Done()
	logger.Info("shutting down")
	app.Pool.Stop()
	return nil
}
