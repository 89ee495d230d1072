package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/embeddings"
	"github.com/recall-ai/recall/src/handlers"
	"github.com/recall-ai/recall/src/health"
	"github.com/recall-ai/recall/src/matcher"
	"github.com/recall-ai/recall/src/middleware"
	"github.com/recall-ai/recall/src/prewarm"
	"github.com/recall-ai/recall/src/scoring"
	"github.com/recall-ai/recall/src/store"
	"github.com/recall-ai/recall/src/tiering"
	"github.com/recall-ai/recall/src/upstream"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func main() {
	if os.Getenv("UPSTREAM_API_KEY") == "" {
		log.Fatal("❌ UPSTREAM_API_KEY not set in environment or .env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("✓ Config loaded successfully")

	index, err := store.NewRedisIndex(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer index.Close()
	log.Printf("✓ Redis connected")

	redisClient := index.GetClient()
	accessLog := store.NewAccessLog(redisClient)
	predictionLog := store.NewPredictionLog(redisClient)
	featureStore := store.NewFeatureStore(redisClient)
	boundaryStore := store.NewBoundaryStore(redisClient)
	locks := store.NewActionLocks(redisClient, cfg.Maintenance.LockTTL)

	embedder, err := embeddings.NewOpenAIEmbedder(&cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}
	log.Printf("✓ Embedder ready: %s (dim %d)", cfg.Embedding.Model, cfg.Embedding.Dimension)

	upstreamClient, err := upstream.NewLLMClient(&cfg.Upstream)
	if err != nil {
		log.Fatalf("Failed to initialize upstream client: %v", err)
	}
	log.Printf("✓ Upstream client ready: %s", cfg.Upstream.Model)

	scorer := scoring.NewScorer(index, boundaryStore, &cfg.Scoring)
	tierManager := tiering.NewManager(index, scorer, embedder, boundaryStore, locks, &cfg.Tiers)
	similarityMatcher := matcher.NewMatcher(index, scorer, accessLog, &cfg.Matcher)
	prewarmer := prewarm.NewPrewarmer(
		index,
		similarityMatcher,
		upstreamClient,
		embedder,
		tierManager,
		accessLog,
		predictionLog,
		locks,
		&cfg.Prewarm,
		cfg.Matcher.DefaultThreshold,
		cfg.Upstream.Model,
	)
	healthController := health.NewController(index, tierManager, prewarmer, featureStore, accessLog, locks, &cfg.Maintenance)
	log.Printf("✓ Cache engine initialized (threshold: %.2f, decay half-life: %s)",
		cfg.Matcher.DefaultThreshold, cfg.Scoring.DecayHalfLife)

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	cacheHandler := handlers.NewCacheHandler(similarityMatcher, tierManager)
	maintenanceHandler := handlers.NewMaintenanceHandler(healthController)
	callerMiddleware := middleware.NewCallerMiddleware(cfg.Plans)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", maintenanceHandler.HandleHealth)
		v1.POST("/maintenance", maintenanceHandler.HandleTrigger)

		protected := v1.Group("/cache")
		protected.Use(callerMiddleware.RequireCaller())
		{
			protected.POST("/lookup", cacheHandler.HandleLookup)
			protected.POST("/entries", cacheHandler.HandleInsert)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Printf("🚀 Recall cache engine running on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func corsMiddleware() gin.HandlerFunc {
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	var allowedOrigins []string

	if allowedOriginsEnv != "" {
		allowedOrigins = strings.Split(allowedOriginsEnv, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	} else {
		// Default for local development
		allowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Requests without an Origin header (health checks, curl) pass through
		if origin == "" {
			c.Next()
			return
		}

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		if !allowed {
			c.AbortWithStatus(403)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Plan")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
