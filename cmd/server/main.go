package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"prism/internal/auth"
	"prism/internal/capabilities"
	"prism/internal/config"
	"prism/internal/handler"
	"prism/internal/middleware"
	"prism/internal/repository/postgres"
	postgresChat "prism/internal/repository/postgres/chat"
	"prism/internal/search"
	serviceChat "prism/internal/service/chat"
	"prism/internal/service/chat/providers"
	"prism/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create table names and repositories
	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	conversationRepo := postgresChat.NewConversationRepository(repoConfig)
	messageRepo := postgresChat.NewMessageRepository(repoConfig)
	userRepo := postgresChat.NewUserRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Initialize capability registry
	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}
	logger.Info("capability registry initialized")

	// Setup provider adapters (a family without a key is simply not served)
	providerRegistry, err := providers.NewRegistry(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to setup providers: %v", err)
	}
	defer providerRegistry.Close()

	// Attachment storage is optional; turns with attachments are rejected
	// when it is not configured
	var objectStore storage.ObjectStore
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Bucket:    cfg.S3Bucket,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to setup attachment storage: %v", err)
		}
		objectStore = s3Store
	} else {
		logger.Warn("attachment storage disabled: S3_BUCKET not set")
	}

	// Academic retrieval is optional; academic mode degrades silently
	// without it
	var searchClient search.Client
	if cfg.TavilyAPIKey != "" {
		searchClient = search.NewTavilyClient(cfg.TavilyAPIKey)
	} else {
		logger.Warn("academic retrieval disabled: TAVILY_API_KEY not set")
	}

	// Turn pipeline services
	lockManager := serviceChat.NewLockManager(conversationRepo, logger)
	ingestor := serviceChat.NewAttachmentIngestor(objectStore, logger)
	augmenter := serviceChat.NewAugmenter(userRepo, searchClient, logger)
	orchestrator := serviceChat.NewOrchestrator(
		capabilityRegistry,
		providerRegistry,
		conversationRepo,
		messageRepo,
		userRepo,
		lockManager,
		ingestor,
		augmenter,
		logger,
	)
	conversationService := serviceChat.NewConversationService(conversationRepo, messageRepo, txManager, logger)
	memoryService := serviceChat.NewMemoryService(userRepo, logger)

	// Handlers
	chatHandler := handler.NewChatHandler(orchestrator, logger)
	conversationHandler := handler.NewConversationHandler(conversationService, logger)
	modelsHandler := handler.NewModelsHandler(capabilityRegistry, logger)
	memoryHandler := handler.NewMemoryHandler(memoryService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Chat turn streaming
	mux.HandleFunc("POST /api/chat", chatHandler.StreamTurn)

	// Conversation routes
	mux.HandleFunc("GET /api/conversations", conversationHandler.ListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", conversationHandler.GetConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", conversationHandler.ListMessages)
	mux.HandleFunc("PATCH /api/conversations/{id}", conversationHandler.UpdateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", conversationHandler.DeleteConversation)

	// Model catalog
	mux.HandleFunc("GET /api/models", modelsHandler.ListModels)

	// User memory routes
	mux.HandleFunc("GET /api/users/me/memory", memoryHandler.GetMemory)
	mux.HandleFunc("PATCH /api/users/me/memory", memoryHandler.UpdateMemory)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → RateLimit → Auth → Routes
	root = middleware.AuthMiddleware(jwtVerifier)(root)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	root = middleware.RateLimit(rateLimiter, logger)(root)

	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
