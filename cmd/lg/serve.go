package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/dashboard"
	"github.com/zulandar/linegrade/internal/engine"
	"github.com/zulandar/linegrade/internal/metrics"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serves the grading API and prometheus metrics. With --workers, the same " +
			"process also drains the job queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, workers)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	cmd.Flags().IntVar(&workers, "workers", 0, "in-process rating workers to run alongside the API")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port, workers int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if workers < 0 {
		return fmt.Errorf("--workers must not be negative")
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	factory := workerFactory(cfg, gormDB)
	pollWorker, err := factory(0)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on :%d (%d workers)\n", cfg.Server.Port, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dashboard.Start(gctx, dashboard.Options{
			DB:       gormDB,
			Port:     cfg.Server.Port,
			Dispatch: dispatchOptions(cfg),
			Worker:   pollWorker,
		})
	})
	if workers > 0 {
		g.Go(func() error { return engine.RunPool(gctx, workers, factory) })
	}
	return g.Wait()
}
