// Parley - conversational parenting assistant backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/dispatch"
	"github.com/parleyhq/parley/exploration"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
	anthropicmodel "github.com/parleyhq/parley/model/anthropic"
	openaimodel "github.com/parleyhq/parley/model/openai"
	"github.com/parleyhq/parley/server"
	"github.com/parleyhq/parley/session"
	"github.com/parleyhq/parley/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(slogger)
	logger := logging.NewSlogAdapter(slogger)

	slog.Info("Starting server", "addr", cfg.Addr, "provider", cfg.ModelProvider, "in_memory", cfg.InMemory())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		conversations core.ConversationStore
		explorations  core.ExplorationStore
		subjects      core.SubjectDirectory
	)
	if cfg.InMemory() {
		mem := store.NewInMemoryStore()
		conversations = mem
		explorations = mem
		subjects = store.NewStaticSubjectDirectory()
	} else {
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				slog.Error("Failed to close database", "error", closeErr)
			}
		}()
		if err := repo.Ping(ctx); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Database connected", "path", cfg.DBPath)
		conversations = repo
		explorations = repo
		subjects = repo
	}

	m := buildModel(cfg)

	registry := agent.NewDefaultRegistry()
	pipeline := agent.NewPipeline(m, func(o *agent.PipelineOptions) {
		o.Logger = logging.With(logger, "component", "pipeline")
	})
	expl := exploration.NewService(m, explorations, func(o *exploration.Options) {
		o.Logger = logging.With(logger, "component", "exploration")
	})
	trigger := dispatch.NewTopicTrigger(m, logging.With(logger, "component", "trigger"))

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.TTL = cfg.SessionTTL
		o.MaxEntries = cfg.SessionMaxEntries
		o.Logger = logging.With(logger, "component", "session")
	})
	sessions.Start(ctx)

	dispatcher := dispatch.NewDispatcher(registry, pipeline, expl, conversations, subjects, sessions, trigger,
		func(o *dispatch.Options) {
			o.Logger = logging.With(logger, "component", "dispatch")
			o.DefaultAgentID = cfg.DefaultAgent
		})

	srv := server.New(dispatcher, registry, expl, conversations, sessions, func(o *server.Options) {
		o.Logger = logging.With(logger, "component", "server")
		o.AuthToken = cfg.AuthToken
		o.AllowedOrigins = cfg.AllowedOrigins
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Router(),
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}

// buildModel selects the upstream model adapter from configuration.
func buildModel(cfg *config.Config) model.Model {
	switch cfg.ModelProvider {
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.ModelName != "" {
				o.Model = anthropicsdk.Model(cfg.ModelName)
			}
		})
	case "mock":
		return model.NewMockModel("mock")
	default:
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		})
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
