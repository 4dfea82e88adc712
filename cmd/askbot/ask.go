package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"askbot/internal/domain"

	"github.com/spf13/cobra"
)

func askCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Ask one question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := newPipeline(ctx, cfg, logger)
			ans, err := p.svc.Ask(ctx, args[0])
			if err != nil {
				if errors.Is(err, domain.ErrQuestionEmpty) || errors.Is(err, domain.ErrQuestionTooLong) {
					fmt.Fprintln(os.Stderr, "error:", err)
					os.Exit(2)
				}
				return err
			}

			if asJSON {
				data, _ := json.MarshalIndent(ans, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Println(ans.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer as JSON")
	return cmd
}
