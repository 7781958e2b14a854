package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sira-labs/sira/internal/memory"
	"github.com/sira-labs/sira/internal/rag"
	"github.com/sira-labs/sira/internal/store"
)

// researchCMD runs one ad-hoc research pass for a topic and prints the
// outcome. No job row is created and no history is written.
func researchCMD() *cobra.Command {
	var cfgPath string
	var userID string

	cmd := &cobra.Command{
		Use:   "research <topic>",
		Short: "Run a one-shot research pass for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			a, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome := a.runner.Execute(ctx, store.Job{Topic: args[0], UserID: userID})
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id to attribute memory writes to")
	return cmd
}

// retrieveCMD answers a single query through the retrieval-strategy engine
// and prints the sources plus the strategy that produced them.
func retrieveCMD() *cobra.Command {
	var cfgPath string
	var userID string
	var maxResults int

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Answer a query through the retrieval pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			a, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var mem rag.MemorySearcher = noopMemory{}
			if a.mem != nil {
				mem = a.mem
			}
			pipeline := rag.NewPipeline(a.cfg.Retrieval, a.llm, mem, a.router, a.rt, nil)
			result, err := pipeline.Retrieve(ctx, args[0], userID, nil, maxResults)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id whose memory to search")
	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "maximum sources to return (0 = config default)")
	return cmd
}

// noopMemory stands in when vector memory is disabled; every query resolves
// to the web strategy.
type noopMemory struct{}

func (noopMemory) Search(ctx context.Context, userID, query string, topK int) ([]memory.Hit, error) {
	return nil, nil
}
