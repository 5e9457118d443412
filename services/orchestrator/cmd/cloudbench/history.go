package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded benchmark runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTATUS\tPROVIDER\tSTARTED\tTOTAL\tFAILED STAGE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Status, r.Provider,
					r.StartedAt.UTC().Format(time.RFC3339),
					(time.Duration(r.TotalMS) * time.Millisecond).String(),
					dash(r.FailedStage))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the stored Markdown report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			md, err := store.Report(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			_, err = fmt.Fprint(a.stdout, md)
			return err
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", olderThan)
			}
			store, closeStore, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			cutoff := time.Now().Add(-olderThan)
			n, err := store.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			a.logger.Info().Int64("runs", n).Time("cutoff", cutoff).Msg("history pruned")
			fmt.Fprintf(a.stdout, "pruned %d runs started before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age beyond which runs are deleted")

	cmd.AddCommand(list, show, prune)
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
