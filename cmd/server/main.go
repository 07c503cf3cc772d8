package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"schoolledger/internal/blob"
	"schoolledger/internal/config"
	internalhttp "schoolledger/internal/http"
	"schoolledger/internal/jobs"
	"schoolledger/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New()
	if cfg.SnapshotPath != "" {
		if data, err := os.ReadFile(cfg.SnapshotPath); err == nil {
			if err := st.RestoreJSON(string(data)); err != nil {
				log.Fatalf("snapshot restore failed: %v", err)
			}
			log.Printf("restored snapshot from %s", cfg.SnapshotPath)
		} else if !os.IsNotExist(err) {
			log.Fatalf("snapshot read failed: %v", err)
		}
	}
	if st.Bootstrap(cfg.BootstrapAdmin, cfg.BootstrapAdminName) {
		log.Printf("bootstrapped admin profile for %s", cfg.BootstrapAdmin)
	}

	var photos blob.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
		photos = blob.NewRedisStore(redisClient, cfg.PublicBaseURL)
	} else {
		photos = blob.NewMemoryStore(cfg.PublicBaseURL)
	}

	server := internalhttp.NewServer(cfg, st, photos)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartSnapshotJob(ctx, cfg, st)

	go func() {
		log.Printf("schoolledger http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
