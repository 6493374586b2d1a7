package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/yardmaster"
)

func newSuperviseCmd() *cobra.Command {
	var (
		configPath string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Reclaim expired leases and alert on failed batches",
		Long: "Runs the supervisor: on every scheduled sweep it returns jobs whose lease " +
			"expired to the queue (or fails them when out of attempts) and posts failed " +
			"batches to the configured Slack and Discord channels.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervise(cmd, configPath, once)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}

func runSupervise(cmd *cobra.Command, configPath string, once bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	sup, err := yardmaster.New(queue.New(gormDB), notifier, yardmaster.Options{
		Schedule: cfg.Supervisor.Schedule,
		Alert:    cfg.Supervisor.Alert,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if once {
		defer notifier.Close()
		res, err := sup.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d, failed %d, alerted %d\n", res.Requeued, res.Failed, res.Alerted)
		return nil
	}
	return sup.Run(ctx)
}
