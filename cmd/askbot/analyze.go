package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"askbot/internal/analysis"

	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch the raw archive and report data quality problems",
		Long: "Walks every page of the message source without deduplication and\n" +
			"reports duplicate IDs, user identity conflicts, empty messages,\n" +
			"missing fields, and timestamp format drift.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			items, err := newFetcher(cfg, logger).FetchRaw(ctx)
			if err != nil {
				return err
			}

			report := analysis.Analyze(items)
			if asJSON {
				data, _ := json.MarshalIndent(report, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Print(report.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
