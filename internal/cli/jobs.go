package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/spf13/cobra"
)

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Discover new source files under the input root",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := opts.client().Scan(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d files, %d new jobs\n", summary.Scanned, summary.Created)
			for _, job := range summary.Jobs {
				fmt.Fprintf(out, "  %s  %s\n", job.ID, displayName(job))
			}
			return nil
		},
	}
}

func newSubmitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <job-id>...",
		Short: "Start a job, or queue it behind the running one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			for _, id := range args {
				res, err := c.Submit(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("submit %s: %w", id, err)
				}
				if res.Started {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: conversion started\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: queued at position %d\n", id, res.Position)
				}
			}
			return nil
		},
	}
}

func newCancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Remove a queued job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: removed from queue\n", args[0])
			return nil
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and its HLS output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted\n", args[0])
			return nil
		},
	}
}

func newResetStuckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Mark jobs left IN_PROGRESS by a crash as ERROR",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().ResetStuck(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reset %d stuck jobs\n", len(res.Reset))
			for _, id := range res.Reset {
				fmt.Fprintf(out, "  %s\n", id)
			}
			if res.Started != "" {
				fmt.Fprintf(out, "Started %s from the queue\n", res.Started)
			}
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job with its quality tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client().Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), view)
			}

			out := cmd.OutOrStdout()
			job := view.Job
			fmt.Fprintf(out, "Job:        %s\n", job.ID)
			fmt.Fprintf(out, "Source:     %s\n", displayName(job))
			fmt.Fprintf(out, "Resolution: %s\n", valueOr(job.Resolution, "unknown"))
			fmt.Fprintf(out, "Status:     %s (%d%%)\n", job.Status, job.Progress)
			if view.QueuePosition > 0 {
				fmt.Fprintf(out, "Queue:      position %d\n", view.QueuePosition)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:      %s\n", job.ErrorMessage)
			}
			if live := view.Live; live != nil && live.Quality != "" {
				fmt.Fprintf(out, "Live:       %s %.1f%% ETA %s\n", live.Quality, live.Percent, live.ETA)
			}

			if len(view.Tasks) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "QUALITY\tSTATUS\tSEGMENTS\tERROR")
				for _, task := range view.Tasks {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", task.Quality, task.Status, task.SegmentCount, task.ErrorMessage)
				}
				w.Flush()
			}
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs (optionally by status)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := model.JobStatus(strings.ToUpper(status))
			if st != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			jobs, err := opts.client().ListJobs(cmd.Context(), st, limit)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tRESOLUTION\tSOURCE")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n", job.ID, job.Status, job.Progress, valueOr(job.Resolution, "-"), displayName(job))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (NEW, QUEUED, IN_PROGRESS, DONE, ERROR)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs")
	return cmd
}

func newQueueCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show waiting jobs in admission order",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := opts.client().Queue(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s  %s\n", item.Position, item.JobID, item.Filename)
			}
			return nil
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			for _, status := range model.AllJobStatuses {
				fmt.Fprintf(out, "%-12s %d\n", status, stats.ByStatus[status])
			}
			fmt.Fprintf(out, "%-12s %d\n", "TOTAL", stats.Total)
			fmt.Fprintf(out, "%-12s %.1f%%\n", "COMPLETED", stats.CompletionRate)
			if stats.Active != "" {
				fmt.Fprintf(out, "Converting:  %s\n", stats.Active)
			}
			return nil
		},
	}
}

func displayName(job model.Job) string {
	if job.Subdirectory == "" {
		return job.Filename
	}
	return job.Subdirectory + "/" + job.Filename
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
