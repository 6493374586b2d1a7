package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/session"
	"golang.org/x/term"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status <session>",
		Short: "Show a session's grading state",
		Long: "Prints the session's progress and line ratings. Output is a table on a " +
			"terminal and JSON otherwise; --json forces JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, args[0], asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the grading state as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath, sessionID string, asJSON bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	state, err := session.New(gormDB).State(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON || !isTerminal(out) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	printState(out, state)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printState(out io.Writer, state *session.GradingState) {
	fmt.Fprintf(out, "Session:  %s\n", state.SessionID)
	fmt.Fprintf(out, "Status:   %s\n", state.GradingStatus)
	fmt.Fprintf(out, "Batches:  %d/%d\n", state.CompletedBatches, state.TotalBatches)
	if len(state.LineRatings) == 0 {
		fmt.Fprintln(out, "No lines rated yet.")
		return
	}

	indexes := make([]int, 0, len(state.LineRatings))
	for k := range state.LineRatings {
		if i, err := strconv.Atoi(k); err == nil {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tRATING\tCACHED\tTEXT")
	for _, i := range indexes {
		lr := state.LineRatings[strconv.Itoa(i)]
		rating := lr.Rating
		if lr.Error != "" {
			rating = "error"
		}
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", i, rating, lr.Cached, truncate(lr.Text, 60))
	}
	w.Flush()
}

// truncate shortens s to max runes, adding "..." if truncated.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
