package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"askbot/internal/eval"

	"github.com/spf13/cobra"
)

func evalCmd() *cobra.Command {
	var suitePath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a YAML question suite against the live pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			suite, err := eval.LoadSuite(suitePath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := newPipeline(ctx, cfg, logger)
			summary, err := eval.Run(ctx, p.svc, suite, logger)
			if err != nil {
				return err
			}

			if asJSON {
				data, _ := json.MarshalIndent(summary, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Print(summary.Render())
			}
			if !summary.Ok() {
				return fmt.Errorf("%d of %d cases failed", summary.Failed, summary.Passed+summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "suites/smoke.yaml", "path to the suite file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}
