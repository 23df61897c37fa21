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

	"github.com/rs/zerolog/log"

	"github.com/medigrid/backend/internal/adapters/cache"
	"github.com/medigrid/backend/internal/adapters/database"
	"github.com/medigrid/backend/internal/adapters/events"
	"github.com/medigrid/backend/internal/api/handlers"
	"github.com/medigrid/backend/internal/api/routes"
	"github.com/medigrid/backend/internal/application/services"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/infrastructure/clients/gemini"
	"github.com/medigrid/backend/internal/infrastructure/clients/openai"
	"github.com/medigrid/backend/internal/infrastructure/clients/redis"
	"github.com/medigrid/backend/internal/infrastructure/clients/sqldb"
	"github.com/medigrid/backend/internal/infrastructure/observability"
	"github.com/medigrid/backend/pkg/config"
	"github.com/medigrid/backend/pkg/secrets"
	"github.com/medigrid/backend/pkg/utils"
)

const memoryCacheSize = 4096

func main() {
	// Pull provider credentials from Vault before reading configuration
	vaultResult, vaultErr := secrets.LoadIntoEnv(context.Background(), secrets.VaultConfigFromEnv())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)
	logger := observability.GetLogger()
	if vaultErr != nil {
		logger.Warn().Err(vaultErr).Str("path", vaultResult.Path).Msg("Failed to load secrets from Vault")
	} else if vaultResult.Loaded > 0 {
		logger.Info().Int("loaded", vaultResult.Loaded).Int("skipped", vaultResult.Skipped).Msg("Secrets loaded from Vault")
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if shutdown != nil {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize database client
	dbClient, err := sqldb.NewClient(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize database client")
	}
	defer dbClient.Close()
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Database client initialized")

	// Initialize cache and event bus: Redis when enabled and reachable,
	// in-process otherwise
	var (
		cacheProvider providers.CacheProvider
		eventBus      providers.EventBus
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable; falling back to in-memory cache")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient, "medigrid:")
			eventBus = events.NewRedisEventBus(redisClient)
			logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis cache and event bus initialized")
		}
	}
	if cacheProvider == nil {
		cacheProvider = cache.NewMemoryAdapter(memoryCacheSize)
		eventBus = events.NewMemoryEventBus()
	}

	// Initialize AI providers
	var (
		extractor providers.PrescriptionExtractor
		analyzer  providers.WarningAnalyzer
		chat      providers.ChatProvider
	)
	geminiClient, err := gemini.NewClient(ctx, &cfg.Gemini, metrics)
	if err != nil {
		logger.Warn().Err(err).Msg("Gemini disabled; extraction and chat will report failures")
	} else {
		extractor, analyzer, chat = geminiClient, geminiClient, geminiClient
	}
	if cfg.OpenAI.APIKey != "" {
		openaiClient, err := openai.NewClient(&cfg.OpenAI, metrics)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize OpenAI client")
		} else {
			analyzer = openaiClient
			logger.Info().Str("model", cfg.OpenAI.Model).Msg("Critical warnings served by OpenAI")
		}
	}

	sig := utils.NewSigNormalizer(nil)
	if path := utils.GetSigConfigPath(); path != "" {
		loaded, err := utils.LoadSigNormalizer(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Using default dosing abbreviations")
		} else {
			sig = loaded
		}
	}

	// Initialize services
	prescriptionAdapter := database.NewPrescriptionAdapter(dbClient, metrics)
	prescriptionService := services.NewPrescriptionService(prescriptionAdapter, cacheProvider, metrics)
	prescriptionService.SetEventBus(eventBus)
	if err := prescriptionService.EnsureSchema(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ensure prescription schema; will retry on first use")
	}

	extractionService := services.NewExtractionService(extractor, sig)
	warningService := services.NewWarningService(analyzer)
	assistantService := services.NewAssistantService(chat, cacheProvider)

	// Initialize handlers
	prescriptionHandler := handlers.NewPrescriptionHandler(prescriptionService)
	aiHandler := handlers.NewAIHandler(extractionService, warningService, assistantService)
	sseHandler := handlers.NewSSEHandler(eventBus)

	// Set up router
	router := routes.NewRouter(
		prescriptionHandler,
		aiHandler,
		sseHandler,
		cfg.Server.StaticDir,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	// Create HTTP server. Extraction waits on a vision model, so writes get
	// a longer deadline than reads.
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// Closing the bus ends open event streams so Shutdown does not wait on them.
	server.RegisterOnShutdown(func() {
		if err := eventBus.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing event bus")
		}
	})

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	logger.Info().Msg("Server stopped")
}
