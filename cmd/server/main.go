package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"river-backend/internal/config"
	"river-backend/internal/database"
	"river-backend/internal/handlers"
	"river-backend/internal/middleware"
	"river-backend/internal/repository"
	"river-backend/internal/repository/rest"
	"river-backend/internal/router"
	"river-backend/internal/services"
	"river-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("✗ configuration invalid")
	}
	log := config.NewLogger(cfg.LogLevel)
	log.WithField("env", cfg.Env).Info("🚀 starting generation backend")

	// ──── Step 2: Persistence Gateway ────
	startCtx := context.Background()
	var store services.Gateway
	switch cfg.StoreBackend {
	case config.StoreBackendPostgREST:
		restStore, err := rest.NewStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, log)
		if err != nil {
			log.WithError(err).Fatal("✗ PostgREST client failed")
		}
		store = restStore
		log.Info("✓ PostgREST gateway ready")
	default:
		pool, err := database.NewPostgresPool(startCtx, cfg.DatabaseURL, database.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			log.WithError(err).Fatal("✗ PostgreSQL connection failed")
		}
		defer pool.Close()
		log.Info("✓ PostgreSQL connected")

		if err := database.RunMigrations(startCtx, pool, cfg.MigrationsDir, log); err != nil {
			log.WithError(err).Fatal("✗ database migration failed")
		}
		log.Info("✓ database migrations applied")
		store = repository.NewStore(pool)
	}

	// ──── Step 3: Redis (optional) ────
	var (
		locks       services.KeyLocker
		pubsub      *redis.Client
		redisStatus services.StatusPublisher
	)
	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(startCtx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("✗ Redis connection failed")
		}
		defer redisClients.Close()
		locks = services.NewRedisKeyLocker(redisClients.Locks)
		redisStatus = services.NewRedisStatusPublisher(redisClients.Locks, log)
		pubsub = redisClients.PubSub
		log.Info("✓ Redis connected")
	} else {
		log.Warn("REDIS_URL not set: generation locks disabled, status updates stay in-process")
	}

	// ──── Step 4: Upstream collaborators ────
	geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, log)
	if err != nil {
		log.WithError(err).Fatal("✗ Gemini client initialization failed")
	}
	defer geminiService.Close()
	log.WithField("model", cfg.GeminiModel).Info("✓ Gemini client initialized")

	youtubeService := services.NewYouTubeService(log)

	// ──── Step 5: WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(pubsub, jwtAuth, log)
	status := redisStatus
	if status == nil {
		status = wsHub
	}

	// ──── Step 6: Services & Handlers ────
	generationService := services.NewGenerationService(services.GenerationServiceConfig{
		Store:       store,
		Metadata:    youtubeService,
		Transcripts: youtubeService,
		Generator:   geminiService,
		Locks:       locks,
		Status:      status,
		LockTTL:     cfg.GenerationLockTTL,
		Logger:      log,
	})

	generationHandler := handlers.NewGenerationHandler(generationService)
	claimHandler := handlers.NewClaimHandler(generationService.Owners())

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	defer limiter.Stop()

	// ──── Step 7: Start HTTP Server ────
	r := router.New(router.Options{
		Logger:            log,
		JWTAuth:           jwtAuth,
		GenerationHandler: generationHandler,
		ClaimHandler:      claimHandler,
		WSHub:             wsHub,
		GenerateLimiter:   limiter,
		PublicIngestKey:   cfg.PublicIngestKey,
		FrontendURL:       cfg.FrontendURL,
		RequestTimeout:    cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.WithFields(logrus.Fields{
		"api": fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
		"ws":  fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port),
	}).Info("✓ backend ready")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}
}
