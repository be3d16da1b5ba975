// Command cockpit-server runs the HTTP API: auth, job lifecycle, the
// Nautobot/CheckMK proxy and offboarding surface, credentials, the agent
// bus, and the audit log query endpoint.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/bootstrap"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/api"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/offboard"
)

var (
	listenAddr  string
	corsOrigins []string
)

func main() {
	root := &cobra.Command{
		Use:   "cockpit-server",
		Short: "Run the Cockpit HTTP API",
		RunE:  run,
	}
	root.Flags().StringVar(&listenAddr, "listen", ":8080", "address to listen on")
	root.Flags().StringSliceVar(&corsOrigins, "cors-origin", []string{"*"}, "allowed CORS origins")

	if err := root.Execute(); err != nil {
		cockpitlog.WithComponent("cockpit-server").WithError(err).Fatal("server exited")
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := cockpitlog.WithComponent("cockpit-server")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	offboardSvc := offboard.NewService(app.Nautobot, app.CheckMK, app.Settings, app.Audit)

	srv := api.NewServer(api.Deps{
		Config:      app.Config.Auth,
		Users:       app.Users,
		RBAC:        app.RBAC,
		Audit:       app.Audit,
		Templates:   app.Templates,
		Schedules:   app.Schedules,
		Inventories: app.Inventories,
		Dispatcher:  app.Dispatcher,
		Credentials: app.Credentials,
		Nautobot:    app.Nautobot,
		Resolvers:   app.Resolvers,
		CheckMK:     app.CheckMK,
		Offboard:    offboardSvc,
		AgentBus:    app.AgentBus,
		AgentCmds:   app.AgentCmds,
		GitRepos:    app.GitRepos,
		CORSOrigins: corsOrigins,
	})

	registry := prometheus.NewRegistry()
	for _, c := range srv.Collector() {
		registry.MustRegister(c)
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", listenAddr).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
