package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpilot/internal/app"
	"github.com/ignite/adpilot/internal/config"
	"github.com/ignite/adpilot/internal/pkg/logger"
)

// The worker runs queue handlers and the standing schedule without the HTTP
// API. Deployments that colocate the API with the workers only need the
// server binary; this one exists for scaling the two independently.
func main() {
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}
	log.Println("Starting adpilot worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			log.Fatalf("Failed to ping database: %v", err)
		}
		cancel()
		log.Println("Connected to database")
	} else {
		log.Println("No database configured; running with in-memory stores")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	application, err := app.New(cfg, db, rdb)
	if err != nil {
		log.Fatalf("Failed to wire application: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	log.Println("Worker running; waiting for jobs")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	application.Stop()
	log.Println("Worker stopped")
}
