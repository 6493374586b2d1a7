package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/dispatch"
	"github.com/zulandar/linegrade/internal/transcript"
)

func newEnqueueCmd() *cobra.Command {
	var (
		configPath   string
		sessionID    string
		file         string
		repName      string
		customerName string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a transcript for grading",
		Long: "Reads a JSON transcript ([{\"speaker\": ..., \"text\": ...}]), selects the rep's " +
			"lines and enqueues one job per batch for the session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, configPath, dispatch.Request{
				SessionID:    sessionID,
				RepName:      repName,
				CustomerName: customerName,
			}, file)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "transcript JSON file (required)")
	cmd.Flags().StringVar(&repName, "rep-name", "", "sales rep display name")
	cmd.Flags().StringVar(&customerName, "customer-name", "", "customer display name")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runEnqueue(cmd *cobra.Command, configPath string, req dispatch.Request, file string) error {
	entries, err := transcript.ReadFile(file)
	if err != nil {
		return err
	}
	req.Transcript = entries

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	res, err := dispatch.Dispatch(cmd.Context(), gormDB, req, dispatchOptions(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s: %d rep lines in %d batches\n",
		res.SessionID, res.LineCount, res.TotalBatches)
	return nil
}
