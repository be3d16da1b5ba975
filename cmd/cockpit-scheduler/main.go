// Command cockpit-scheduler runs the single-instance cron tick loop over
// JobSchedule entries, starting a run through the same dispatcher the API
// uses for manual triggers.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/bootstrap"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
)

func main() {
	root := &cobra.Command{
		Use:   "cockpit-scheduler",
		Short: "Run the Cockpit job schedule tick loop",
		RunE:  run,
	}

	if err := root.Execute(); err != nil {
		cockpitlog.WithComponent("cockpit-scheduler").WithError(err).Fatal("scheduler exited")
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := cockpitlog.WithComponent("cockpit-scheduler")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sched := app.Scheduler()
	logger.Info("scheduler starting")
	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()
	return nil
}
