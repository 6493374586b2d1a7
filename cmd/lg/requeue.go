package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/session"
)

func newRequeueCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "requeue <session>",
		Short: "Return a session's failed batches to the queue",
		Long:  "Resets every failed job of the session to pending with a fresh attempt budget.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequeue(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runRequeue(cmd *cobra.Command, configPath, sessionID string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if _, err := session.New(gormDB).Get(ctx, sessionID); err != nil {
		return err
	}
	n, err := queue.New(gormDB).RequeueFailed(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed batches of session %s\n", n, sessionID)
	return nil
}
