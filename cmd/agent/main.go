// Package main is the entry point for the stallpos agent: the process on each
// point-of-sale terminal that serves the local UI and keeps working offline.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"stallpos/internal/domain/pos"
	"stallpos/internal/domain/stock"
	"stallpos/internal/infrastructure/http/agent"
	"stallpos/internal/offline/connectivity"
	"stallpos/internal/offline/eventstore"
	"stallpos/internal/offline/localdb"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
	"stallpos/internal/offline/syncengine"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log.Info("starting stallpos agent")

	var (
		store eventstore.Store
		q     queue.Queue
	)
	dbPath := getEnv("AGENT_DB_PATH", "stallpos-agent.db")
	db, err := localdb.Open(localdb.DefaultConfig(dbPath))
	if err == nil {
		defer func() {
			if err := localdb.Close(db); err != nil {
				log.Errorw("close local database", "error", err)
			}
		}()
		if store, err = eventstore.NewSQLite(db); err == nil {
			q, err = queue.NewSQLite(db)
		}
	}
	if err != nil {
		// reads stay empty and every write is refused until the disk is fixed
		log.Errorw("local database unavailable, offline writes disabled", "path", dbPath, "error", err)
		store = eventstore.Unavailable{Cause: err}
		q = queue.NewMemory()
	}

	serverURL := mustEnv("STALLPOS_SERVER_URL")
	gw := remote.NewHTTP(remote.Config{
		BaseURL:    serverURL,
		Timeout:    getEnvDuration("SERVER_TIMEOUT", 10*time.Second),
		OperatorID: getEnv("OPERATOR_ID", ""),
	})

	syncCfg := syncengine.DefaultConfig()
	syncCfg.Interval = getEnvDuration("SYNC_INTERVAL", syncCfg.Interval)
	syncCfg.StallThreshold = getEnvInt("STALL_THRESHOLD", syncCfg.StallThreshold)
	engine := syncengine.New(syncCfg, store, q, gw, log)
	if err := engine.Start(ctx); err != nil {
		log.Fatalw("failed to start sync engine", "error", err)
	}

	probeCfg := connectivity.DefaultConfig()
	probeCfg.Interval = getEnvDuration("PROBE_INTERVAL", probeCfg.Interval)
	prober := connectivity.NewProber(probeCfg, gw, engine, log)
	go prober.Run(ctx)

	calc := stock.NewCalculator(stock.LoggingObserver(log))
	svc := pos.NewService(pos.Config{CallTimeout: syncCfg.CallTimeout}, store, q, gw, engine, calc, log)

	router := agent.NewRouter(agent.RouterConfig{POS: svc, Logger: log})

	port := getEnv("AGENT_PORT", "8090")
	server := &http.Server{
		Addr:        "127.0.0.1:" + port,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// no WriteTimeout: /sync/events is long-lived
	}

	go func() {
		log.Infow("agent API starting", "port", port, "server", serverURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("agent API failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// ends open /sync/events streams, which Shutdown would otherwise wait on
	server.RegisterOnShutdown(cancel)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("agent API forced to shutdown", "error", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Errorw("sync engine shutdown", "error", err)
	}

	log.Info("agent stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("%s is required\n", key)
		os.Exit(1)
	}
	return value
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
