package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"askbot/internal/channel"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and Telegram when enabled)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPipeline(ctx, cfg, logger)

	if cfg.Corpus.WarmOnStart {
		p.store.Warm(ctx)
	}
	if cfg.Corpus.RefreshIntervalMinutes > 0 {
		go p.store.Run(ctx, time.Duration(cfg.Corpus.RefreshIntervalMinutes)*time.Minute)
	}

	srv := channel.NewHTTPServer(channel.HTTPServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		QA:             p.svc,
		Store:          p.store,
		Providers:      providerStatuses(ctx, cfg, p.factory),
		RetrieverMode:  p.retriever.Name(),
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Version:        version,
		Logger:         logger,
	})

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Telegram.Token,
			AllowFrom: cfg.Telegram.AllowFrom,
			ParseMode: cfg.Telegram.ParseMode,
			QA:        p.svc,
			Store:     p.store,
			Logger:    logger,
		})
		go func() {
			if err := tg.Start(ctx); err != nil {
				logger.Error("telegram channel error", "error", err)
			}
		}()
	} else {
		logger.Info("telegram channel disabled")
	}

	logger.Info("askbot started",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"retriever", p.retriever.Name(),
		"version", version)

	// Blocks until the signal context ends, then drains with a bounded
	// shutdown inside Start.
	return srv.Start(ctx)
}
