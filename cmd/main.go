package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/auth"
	"github.com/meepleai/meepleai-api/chunker"
	"github.com/meepleai/meepleai-api/config"
	"github.com/meepleai/meepleai-api/handlers"
	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services/impl"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database connection
	db, err := initDB(cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schema
	if err := db.AutoMigrate(
		&models.Game{},
		&models.PdfDocument{},
		&models.VectorDocument{},
		&models.PromptTemplate{},
		&models.PromptVersion{},
		&models.PromptAudit{},
		&models.AIRequestLog{},
		&models.QACacheStats{},
		&models.AgentFeedback{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddress(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		// The cache fails open, so a missing Redis degrades to cache misses.
		log.Printf("Warning: Redis connection failed, responses will not be cached: %v", err)
	} else {
		log.Println("Redis connection established")
	}

	// Initialize the vector index
	vectorStore, err := impl.NewVectorStore(cfg.Qdrant.Addr, cfg.Qdrant.Collection, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatal("Failed to connect to Qdrant:", err)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := vectorStore.EnsureCollection(ctx); err != nil {
			log.Fatal("Failed to ensure Qdrant collection:", err)
		}
		cancel()
	}

	// Initialize services
	cacheService := impl.NewCacheService(redisClient)
	cacheStats := impl.NewCacheStatsService(db, cacheService)
	embeddingService := impl.NewEmbeddingService(&cfg.Embedding)
	llmService := impl.NewLLMService(&cfg.LLM)
	extractionService := impl.NewExtractionService(&cfg.Extraction)
	gameService := impl.NewGameService(db)
	pdfService := impl.NewPdfService(db, extractionService, gameService)
	requestLog := impl.NewRequestLogService(db)
	feedbackService := impl.NewFeedbackService(db)

	promptService := impl.NewPromptService(
		db,
		cacheService,
		cfg.Prompts.MaxSizeBytes,
		time.Duration(cfg.Prompts.CacheTTL)*time.Second,
		cfg.Prompts.WarmList,
	)

	ch := chunker.NewWithConfig(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.CharsPerPage)
	indexService := impl.NewIndexService(db, ch, embeddingService, vectorStore, cacheService, cfg.Indexing.MaxWorkers)

	defaultTTL := time.Duration(cfg.Cache.DefaultTTL) * time.Second
	setupTTL := time.Duration(cfg.Cache.SetupTTL) * time.Second
	idleTimeout := time.Duration(cfg.LLM.IdleTimeout) * time.Second

	qaService := impl.NewQAService(embeddingService, vectorStore, llmService, cacheService, cacheStats, promptService, defaultTTL)
	streamService := impl.NewStreamService(embeddingService, vectorStore, llmService, cacheService, cacheStats, promptService, defaultTTL, idleTimeout)
	explainService := impl.NewExplainService(embeddingService, vectorStore, llmService, cacheService, promptService, defaultTTL, setupTTL)

	// Preload active prompts so the first request does not pay the lookup.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := promptService.WarmCache(ctx); err != nil {
			log.Printf("Warning: prompt warm-up failed: %v", err)
		}
		cancel()
	}

	// Initialize handlers
	agentHandlers := handlers.NewAgentHandlers(qaService, streamService, explainService, feedbackService, requestLog)
	ingestHandlers := handlers.NewIngestHandlers(pdfService, indexService, gameService)
	promptHandlers := handlers.NewPromptHandlers(promptService)
	adminHandlers := handlers.NewAdminHandlers(cacheService, cacheStats)

	router := setupRouter(agentHandlers, ingestHandlers, promptHandlers, adminHandlers, cfg)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("MeepleAI server starting on %s", cfg.GetServerAddress())
		log.Printf("Qdrant: %s (collection %s)", cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		log.Printf("Embedding model: %s (%d dims)", cfg.Embedding.Model, cfg.Embedding.Dimensions)
		log.Printf("LLM model: %s", cfg.LLM.Model)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func initDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func setupRouter(
	agentHandlers *handlers.AgentHandlers,
	ingestHandlers *handlers.IngestHandlers,
	promptHandlers *handlers.PromptHandlers,
	adminHandlers *handlers.AdminHandlers,
	cfg *config.Config,
) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(handlers.CorrelationMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Auth.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", handlers.CorrelationIDHeader}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "meepleai-api",
		})
	})

	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWTSecret, nil)

	v1 := router.Group("/api/v1")
	v1.Use(handlers.AuthMiddleware(jwtValidator))

	agents := v1.Group("/agents")
	{
		agents.POST("/qa", agentHandlers.QA)
		agents.POST("/qa/stream", agentHandlers.QAStream)
		agents.POST("/explain", agentHandlers.Explain)
		agents.POST("/feedback", agentHandlers.Feedback)
		agents.GET("/feedback/stats", handlers.RequireRole(auth.RoleAdmin), agentHandlers.FeedbackStats)
		agents.GET("/requests", handlers.RequireRole(auth.RoleAdmin), agentHandlers.RequestLogs)
	}

	v1.POST("/setup/generate", agentHandlers.GenerateSetup)

	v1.GET("/games", ingestHandlers.ListGames)
	v1.GET("/games/:gameId/pdfs", ingestHandlers.ListPdfs)

	ingest := v1.Group("/ingest", handlers.RequireRole(auth.RoleEditor))
	{
		ingest.POST("/pdf", ingestHandlers.UploadPdf)
		ingest.POST("/pdf/:documentId/index", ingestHandlers.Reindex)
		ingest.GET("/pdf/:documentId/status", ingestHandlers.IndexStatus)
		ingest.DELETE("/pdf/:documentId", ingestHandlers.RemoveDocument)
	}

	admin := v1.Group("/admin", handlers.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/prompts", promptHandlers.CreateTemplate)
		admin.GET("/prompts", promptHandlers.ListTemplates)
		admin.GET("/prompts/:templateId", promptHandlers.GetTemplate)
		admin.POST("/prompts/:templateId/versions", promptHandlers.CreateVersion)
		admin.GET("/prompts/:templateId/versions", promptHandlers.ListVersions)
		admin.POST("/prompts/:templateId/versions/:versionId/activate", promptHandlers.ActivateVersion)
		admin.GET("/prompts/:templateId/audit", promptHandlers.ListAudit)

		admin.GET("/cache/stats", adminHandlers.CacheStats)
		admin.DELETE("/cache", adminHandlers.InvalidateAllCache)
		admin.DELETE("/cache/games/:gameId", adminHandlers.InvalidateGameCache)
		admin.DELETE("/cache/tags/:tag", adminHandlers.InvalidateTagCache)
	}

	return router
}
