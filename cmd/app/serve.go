package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"foodrelay/internal/config"
	"foodrelay/internal/conversation"
	"foodrelay/internal/httpserver"
	"foodrelay/internal/llm"
	"foodrelay/internal/metrics"
	"foodrelay/internal/relay"
	"foodrelay/internal/transport"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogLevel)

	store, closeStore, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	httpClient := transport.NewHTTPClient(cfg.OpenAI.HeaderTimeout)
	llmClient := llm.NewOpenAIClient(cfg.OpenAI, httpClient, logger)

	relayService := relay.NewService(relay.Config{
		Client:  llmClient,
		Store:   store,
		Locker:  conversation.NewLocker(),
		Metrics: m,
		Logger:  logger,
		Defaults: relay.Defaults{
			Model:       cfg.OpenAI.DefaultModel,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
		},
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger: logger,
		API: httpserver.NewHandlers(httpserver.HandlersDeps{
			Relay:     relayService,
			Store:     store,
			Metrics:   m,
			Logger:    logger,
			KeyLoaded: cfg.OpenAI.APIKey != "",
		}),
		Metrics:    m.Handler(),
		UploadsDir: cfg.UploadsDir,
		CORSOrigin: cfg.CORSAllowedOrigin,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Стрим ответа может длиться дольше любого разумного лимита.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("store", cfg.Store.Backend),
			slog.String("model", cfg.OpenAI.DefaultModel),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (conversation.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "file":
		store, err := conversation.NewFileStore(cfg.Path, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to init file store: %w", err)
		}
		return store, noop, nil
	case "redis":
		rdb, err := conversation.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to init redis store: %w", err)
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close", slog.String("error", err.Error()))
			}
		}
		return conversation.NewRedisStore(rdb, cfg.RedisTTL), closeFn, nil
	default:
		return conversation.NewMemoryStore(), noop, nil
	}
}
