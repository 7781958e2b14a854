package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sira-labs/sira/config"
	"github.com/sira-labs/sira/internal/research"
	"github.com/sira-labs/sira/internal/store"
)

func jobsCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage recurring research jobs",
	}
	cmd.AddCommand(jobsScheduleCMD(), jobsListCMD(), jobsCancelCMD(), jobsHistoryCMD(), jobsDiffCMD())
	return cmd
}

// noopTimers satisfies the service's scheduler dependency for one-shot CLI
// invocations. The worker reconciles real timers from the store on its sync
// loop.
type noopTimers struct{}

func (noopTimers) Register(store.Job)  {}
func (noopTimers) Unregister(string)   {}
func (noopTimers) Restore([]store.Job) {}

func openStore(ctx context.Context, cfgPath string) (*store.Store, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Storage.Postgres)
}

func jobsScheduleCMD() *cobra.Command {
	var cfgPath, userID, cron string
	var interval int

	cmd := &cobra.Command{
		Use:   "schedule <topic>",
		Short: "Schedule a recurring research job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			svc := research.NewService(st, noopTimers{}, nil)
			job, err := svc.Schedule(ctx, userID, args[0], interval, cron)
			if err != nil {
				return err
			}
			fmt.Printf("scheduled job %s for topic %q every %ds\n", job.ID, job.Topic, job.IntervalSeconds)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "owning user id")
	cmd.Flags().IntVarP(&interval, "interval", "i", 3600, "run interval in seconds")
	cmd.Flags().StringVar(&cron, "cron", "", "optional cron schedule (@hourly, @daily, or 5-field)")
	return cmd
}

func jobsListCMD() *cobra.Command {
	var cfgPath, userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active jobs for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			jobs, err := st.ListJobsByUser(ctx, userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "owning user id")
	return cmd
}

func jobsCancelCMD() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a recurring job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			svc := research.NewService(st, noopTimers{}, nil)
			if err := svc.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s cancelled\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}

func jobsHistoryCMD() *cobra.Command {
	var cfgPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show recent runs for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			runs, err := st.LatestRuns(ctx, args[0], limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum runs to show")
	return cmd
}

func jobsDiffCMD() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "diff <job-id>",
		Short: "Compare the two most recent runs of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			a, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := research.Diff(ctx, a.store, a.llm, args[0])
			if errors.Is(err, research.ErrInsufficientHistory) {
				fmt.Println("not enough completed runs to compare yet")
				return nil
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
