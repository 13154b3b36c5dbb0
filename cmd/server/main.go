package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gwi.com/conversation-assistant/internal/api"
	"gwi.com/conversation-assistant/internal/auth"
	"gwi.com/conversation-assistant/internal/config"
	"gwi.com/conversation-assistant/internal/core"
	"gwi.com/conversation-assistant/internal/llm"
	"gwi.com/conversation-assistant/internal/logger"
	"gwi.com/conversation-assistant/internal/store"
)

func main() {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logging
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to configure logger")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()

	// Remote model client; unused in mock mode
	var client llm.Client
	if cfg.MockMode {
		log.Warn().Msg("AI_MOCK_REST_CALLS is set: answers and summaries are canned")
	} else {
		client, err = newLLMClient(context.Background(), cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize LLM client")
		}
		defer client.Close()
	}

	chatService := core.NewChatService(dbStore, client, core.Settings{
		MockMode:         cfg.MockMode,
		ChatModel:        cfg.ChatModel,
		MaxTokens:        cfg.ChatMaxTokens,
		SummaryMaxTokens: cfg.SummaryMaxTokens,
	}, log)
	userService := core.NewUserService(dbStore, log)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, userService, tokens, log)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Moderation plus two completions
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("provider", cfg.LLMProvider).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func newLLMClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (llm.Client, error) {
	var client llm.Client
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ChatModel, log)
		if err != nil {
			return nil, err
		}
		client = gemini
	default:
		client = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, log)
	}

	return llm.WithRetry(client, llm.RetryPolicy{
		MaxRetries:      cfg.LLMMaxRetries,
		InitialInterval: cfg.LLMRetryInitialInterval,
	}, log), nil
}
