package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mentor-labs/internal/agent"
	"github.com/ashureev/mentor-labs/internal/api"
	"github.com/ashureev/mentor-labs/internal/config"
	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/health"
	"github.com/ashureev/mentor-labs/internal/identity"
	"github.com/ashureev/mentor-labs/internal/interview"
	"github.com/ashureev/mentor-labs/internal/llm"
	"github.com/ashureev/mentor-labs/internal/metrics"
	"github.com/ashureev/mentor-labs/internal/middleware"
	"github.com/ashureev/mentor-labs/internal/orchestrator"
	"github.com/ashureev/mentor-labs/internal/persona"
	"github.com/ashureev/mentor-labs/internal/router"
	"github.com/ashureev/mentor-labs/internal/store"
	"github.com/ashureev/mentor-labs/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

const healthWatchInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	Long:  `Starts the HTTP chat API (JSON, SSE and WebSocket), the embedded UI and the gRPC health service.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func serve(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Server.Port, "dev", cfg.IsDevelopment(), "mode", cfg.Orchestrator.Mode)

	repo, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()
	slog.Info("Session store connected", "driver", cfg.Store.Driver)

	store.StartRetentionWorker(ctx, repo, cfg.Store.RetentionInterval, cfg.Store.SessionTTL, nil)

	m := metrics.New()

	personas, err := persona.Load(cfg.Orchestrator.PromptsDir, logger)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	prompt, err := systemPrompt(cfg.Orchestrator)
	if err != nil {
		return err
	}

	completer, err := llm.NewOpenAI(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize completion client: %w", err)
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(m)}
	rag, err := openRetrieval(cfg, logger)
	if err != nil {
		slog.Warn("Retrieval disabled", "error", err)
	} else if rag != nil {
		ingestIfEmpty(ctx, rag, cfg.Retrieval.DocsDir, logger)
		opts = append(opts, orchestrator.WithRetriever(rag))
	}

	svc := orchestrator.NewService(
		repo,
		orchestrator.NewExecutor(completer, personas, m, logger),
		router.New(completer, m, logger),
		interview.New(interview.WithStepBudget(cfg.Orchestrator.StepBudget)),
		orchestrator.Config{
			DefaultMode:         domain.Mode(cfg.Orchestrator.Mode),
			DefaultSystemPrompt: prompt,
		},
		logger,
		opts...,
	)

	agentService, err := agent.NewService(svc)
	if err != nil {
		return fmt.Errorf("initialize agent service: %w", err)
	}
	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	chatHandler := agent.NewHandler(agentService, agent.HandlerConfigFrom(cfg), conversationLogger, logger)
	defer chatHandler.Close()

	apiHandler := api.NewHandler(repo, svc, m.Handler())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	apiHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	if cfg.GRPC.Addr != "" {
		healthServer := health.NewServer(logger)
		if err := healthServer.ListenAndServe(cfg.GRPC.Addr); err != nil {
			return err
		}
		defer healthServer.Stop()
		go healthServer.Watch(ctx, repo, healthWatchInterval)
	}

	// SSE and WebSocket replies stream for as long as the model generates,
	// so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
