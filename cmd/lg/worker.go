package main

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/engine"
	"github.com/zulandar/linegrade/internal/metrics"
)

func newWorkerCmd() *cobra.Command {
	var (
		configPath string
		workers    int
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run rating workers",
		Long: "Runs a pool of rating workers that claim batch jobs, rate each line and " +
			"merge the results into the session. --once processes at most one job and " +
			"prints its summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, configPath, workers, once)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "pool size (overrides queue.workers)")
	cmd.Flags().BoolVar(&once, "once", false, "poll once and exit")
	return cmd
}

func runWorker(cmd *cobra.Command, configPath string, workers int, once bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Queue.Workers = workers
	}
	factory := workerFactory(cfg, gormDB)

	ctx, stop := signalContext(cmd)
	defer stop()

	if once {
		w, err := factory(0)
		if err != nil {
			return err
		}
		sum, err := w.Poll(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Starting %d workers\n", cfg.Queue.Workers)
	return engine.RunPool(ctx, cfg.Queue.Workers, factory)
}
