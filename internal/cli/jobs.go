package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "List recorded jobs, or show the partitions of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger == "" {
				return errors.New("no ledger configured (use --ledger)")
			}
			ctx := cmd.Context()
			st, err := openLedger(ctx, a.cfg.Ledger, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				job, err := st.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				fmt.Fprintf(out, "Job:     %s\nTool:    %s\nState:   %s\nCommand: %s\n", job.ID, job.Tool, job.State, job.Command)
				if job.Error != "" {
					fmt.Fprintf(out, "Error:   %s\n", job.Error)
				}
				parts, err := st.ListPartitions(ctx, job.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%-9s  %-6s  %-4s  %-10s  %-10s  %s\n", "PARTITION", "WORKER", "EXIT", "IN", "OUT", "DURATION")
				for _, p := range parts {
					fmt.Fprintf(out, "%-9d  %-6d  %-4d  %-10d  %-10d  %s\n",
						p.Partition, p.Worker, p.ExitCode, p.RecordsIn, p.RecordsOut, p.FinishedAt.Sub(p.StartedAt))
				}
				return nil
			}

			jobs, err := st.ListJobs(ctx, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-10s  %-9s  %s\n", "ID", "TOOL", "STATE", "CREATED")
			for _, j := range jobs {
				fmt.Fprintf(out, "%-36s  %-10s  %-9s  %s\n", j.ID, j.Tool, j.State, j.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list")
	return cmd
}
