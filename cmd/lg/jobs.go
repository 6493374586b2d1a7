package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/queue"
)

func newJobsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "jobs <session>",
		Short: "List a session's batch jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runJobs(cmd *cobra.Command, configPath, sessionID string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	jobs, err := queue.New(gormDB).ListBySession(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBATCH\tSTATUS\tATTEMPTS\tWORKER\tERROR")
	for _, j := range jobs {
		worker := j.ClaimedBy
		if worker == "" {
			worker = "-"
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.BatchIndex+1, j.TotalBatches, j.Status, j.Attempts, j.MaxAttempts, worker, truncate(j.Error, 50))
	}
	w.Flush()
	return nil
}
