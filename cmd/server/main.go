package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tavern-server/internal/cache"
	"tavern-server/internal/catalog"
	"tavern-server/internal/config"
	"tavern-server/internal/database"
	"tavern-server/internal/engine"
	"tavern-server/internal/handler"
	"tavern-server/internal/logger"
	"tavern-server/internal/messaging"
	"tavern-server/internal/service"
	"tavern-server/migrations"
)

func main() {
	// --- Configuration ---
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, relying on environment variables")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgPool, err := setupPostgres(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	if err := database.RunMigrations(pgPool, migrations.FS, log); err != nil {
		zap.L().Fatal("Failed to run database migrations", zap.Error(err))
	}

	redisClient, err := setupRedis(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	// --- Dependency Injection ---
	cardRepo := database.NewPgCardRepository(log)
	npcRepo := database.NewPgNPCRepository(log)
	configRepo := database.NewPgConfigRepository(log)
	stateRepo := database.NewPgPlayerStateRepository(log)

	catalogCache := cache.NewCatalogCache(
		cache.NewMemoryStore(), cache.NewRedisStore(redisClient, log),
		pgPool, cardRepo, npcRepo, configRepo, log)

	index := catalog.NewIndex(log)
	selector := engine.NewSelector(rand.New(rand.NewSource(time.Now().UnixNano())), log)
	processor := engine.NewProcessor(log)
	prefetcher := engine.NewPrefetcher(index, processor, log)

	publisher, err := messaging.NewRabbitMQPublisher(mqConn, cfg.CatalogEventExchange, log)
	if err != nil {
		zap.L().Fatal("Failed to create catalog event publisher", zap.Error(err))
	}
	defer publisher.Close()

	gameService := service.NewGameService(pgPool, stateRepo, catalogCache, index, selector, processor, prefetcher, log)
	catalogService := service.NewCatalogService(pgPool, cardRepo, npcRepo, configRepo, catalogCache, index, prefetcher, publisher, log)

	if _, err := catalogService.EnsureConfig(ctx); err != nil {
		zap.L().Fatal("Failed to ensure game config", zap.Error(err))
	}
	report, err := catalogService.RebuildIndex(ctx)
	if err != nil {
		zap.L().Fatal("Failed to build catalog index", zap.Error(err))
	}
	zap.L().Info("Catalog index built", zap.Int("indexed", report.Indexed), zap.Int("dropped", report.Dropped))

	consumer, err := messaging.NewCatalogEventConsumer(mqConn, cfg.CatalogEventExchange, catalogCache, catalogService, log)
	if err != nil {
		zap.L().Fatal("Failed to create catalog event consumer", zap.Error(err))
	}
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			zap.L().Error("Catalog event consumer stopped with error", zap.Error(err))
		}
	}()

	// --- HTTP Server Setup ---
	gin.SetMode(gin.ReleaseMode)
	gameHandler := handler.NewGameHandler(gameService, cfg.TelegramBotToken, log)
	adminHandler := handler.NewAdminHandler(catalogService, cfg.AdminJWTSecret, log)
	router := handler.NewRouter(gameHandler, adminHandler, cfg.AllowedOrigins, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.Port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}

// setupPostgres initializes the PostgreSQL connection pool with retry logic.
func setupPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var lastErr error
	maxRetries := 10
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		connectCancel()
		if err != nil {
			lastErr = fmt.Errorf("unable to create postgres connection pool (attempt %d/%d): %w", attempt, maxRetries, err)
			zap.L().Warn("Postgres connection pool creation failed, retrying...",
				zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(retryDelay)
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err = pool.Ping(pingCtx)
		pingCancel()
		if err == nil {
			return pool, nil
		}

		pool.Close()
		lastErr = fmt.Errorf("unable to ping postgres database (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Postgres ping failed, retrying...",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, lastErr
}

// setupRedis initializes the Redis client used as the durable cache layer.
func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}

// connectRabbitMQ dials RabbitMQ with retry logic.
func connectRabbitMQ(url string, log *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 10
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn("RabbitMQ connection failed, retrying...",
			zap.Int("attempt", i+1), zap.Int("max_retries", maxRetries), zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("unable to connect to rabbitmq after %d attempts: %w", maxRetries, err)
}
