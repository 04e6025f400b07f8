// Package main is the entry point for the stallpos server, the authoritative
// copy of the stock ledger that offline agents synchronise against.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"stallpos/internal/domain/ledger"
	"stallpos/internal/domain/stock"
	v1 "stallpos/internal/infrastructure/http/v1"
	"stallpos/internal/infrastructure/storage/postgres"
	"stallpos/internal/infrastructure/storage/postgres/ledger_repo"
	"stallpos/pkg/logger"
)

func main() {
	// a missing .env is fine; real environment variables take precedence
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	if getEnv("APP_ENV", "development") != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	log.Info("starting stallpos server")

	calc := stock.NewCalculator(stock.LoggingObserver(log))
	routerCfg := v1.RouterConfig{Logger: log}

	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		poolCfg := postgres.DefaultPoolConfig(dsn)
		poolCfg.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(poolCfg.MaxConns)))
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		txm := postgres.NewTxManager(pool)
		if err := postgres.Migrate(ctx, txm); err != nil {
			log.Fatalw("failed to migrate schema", "error", err)
		}
		log.Info("database connection established")

		routerCfg.DB = pool
		routerCfg.Ledger = ledger.NewService(ledger_repo.NewRepositories(txm), txm, calc, log)
		if getEnv("IDEMPOTENCY_ENABLED", "true") == "true" {
			routerCfg.Idempotency = postgres.NewIdempotencyStore(txm, getEnvDuration("IDEMPOTENCY_TTL", 7*24*time.Hour))
		}
	} else {
		log.Warn("DATABASE_URL not set, running on the in-memory ledger; data is lost on exit")
		mem := ledger.NewMemory()
		routerCfg.Ledger = ledger.NewService(mem.Repositories(), mem.TxManager(), calc, log)
	}

	router := v1.NewRouter(routerCfg)

	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
