package main

import (
	"context"
	"fmt"
	"os"

	"askbot/internal/provider"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			origin := cfgPath
			if _, statErr := os.Stat(cfgPath); statErr != nil {
				origin = "built-in defaults (run 'askbot init' to write a config file)"
			}

			row := func(k, v string) { fmt.Printf("  %-11s %s\n", k, v) }
			fmt.Printf("askbot v%s\n\n", version)
			row("Config:", origin)
			row("Source:", fmt.Sprintf("%s (page size %d, max %d pages)",
				cfg.Source.BaseURL, cfg.Source.PageSize, cfg.Source.MaxPages))

			refresh := "off"
			if cfg.Corpus.RefreshIntervalMinutes > 0 {
				refresh = fmt.Sprintf("every %dm", cfg.Corpus.RefreshIntervalMinutes)
			}
			row("Corpus:", fmt.Sprintf("TTL %dm, warm on start %v, background refresh %s",
				cfg.Corpus.TTLMinutes, cfg.Corpus.WarmOnStart, refresh))
			row("Retriever:", fmt.Sprintf("%s (top %d)", cfg.Retriever.Mode, cfg.Retriever.TopK))

			ctx := context.Background()
			factory := provider.NewFactory(cfg, logger)
			for _, name := range cfg.General.FailoverChain {
				if _, err := factory.Get(ctx, name); err != nil {
					row("Provider:", fmt.Sprintf("%-8s not usable (%v)", name, err))
				} else {
					row("Provider:", fmt.Sprintf("%-8s configured", name))
				}
			}

			limit := "unlimited"
			if cfg.Server.RateLimitRPS > 0 {
				limit = fmt.Sprintf("%.1f rps", cfg.Server.RateLimitRPS)
			}
			row("Server:", fmt.Sprintf("%s:%d (rate limit %s)", cfg.Server.Host, cfg.Server.Port, limit))

			tg := "disabled"
			if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
				tg = "enabled"
			}
			row("Telegram:", tg)
			return nil
		},
	}
}
