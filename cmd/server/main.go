// NetworkU - networking assistant chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recruitu/networku/internal/agent"
	"github.com/recruitu/networku/internal/api"
	"github.com/recruitu/networku/internal/classifier"
	"github.com/recruitu/networku/internal/config"
	"github.com/recruitu/networku/internal/contacts"
	"github.com/recruitu/networku/internal/llm"
	"github.com/recruitu/networku/internal/metrics"
	"github.com/recruitu/networku/internal/middleware"
	"github.com/recruitu/networku/internal/prompts"
	"github.com/recruitu/networku/internal/relay"
	"github.com/recruitu/networku/web"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.LogLevel))

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.OpenAI.Model)

	// Initialize dependencies.
	promptSet, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		slog.Error("Failed to load prompt templates", "error", err, "path", cfg.PromptsPath)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	llmClient, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.OpenAI.Timeout,
	}, m, logger)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	directory, err := contacts.NewDirectory(contacts.DirectoryConfig{
		URL:     cfg.Contacts.URL,
		Timeout: cfg.Contacts.Timeout,
	})
	if err != nil {
		slog.Error("Failed to initialize contacts directory", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	service, err := agent.NewService(agent.Dependencies{
		Classifier: classifier.New(llmClient, promptSet, logger),
		Contacts: contacts.New(llmClient, directory, promptSet, contacts.Options{
			MaxResults: cfg.Contacts.MaxResults,
			Metrics:    m,
			Logger:     logger,
		}),
		Generator: llmClient,
		Relay: relay.New(relay.Config{
			Delay:  cfg.Typing.Delay,
			Jitter: cfg.Typing.Jitter,
		}, m, logger),
		Prompts: promptSet,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to initialize agent service", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	chatHandler := agent.NewHandler(service, agent.HandlerConfig{
		MaxRequestBodySize: cfg.SSE.MaxRequestBodySize,
		AllowedOrigins:     cfg.AllowedOrigins(),
		Transcript:         conversationLogger,
		Logger:             logger,
	})
	defer chatHandler.Close()

	statusHandler := api.NewStatusHandler(api.StatusInfo{
		Model:       llmClient.Model(),
		ContactsURL: cfg.Contacts.URL,
		MaxContacts: cfg.Contacts.MaxResults,
		WebSocket:   true,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer rateLimiter.Stop()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	statusHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Chat routes are rate limited per client.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimiter, m))
		chatHandler.RegisterRoutes(r)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// Note: streamed replies require long-lived responses (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for streaming
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
