package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/rfm-dashboard/internal/api"
	"github.com/ignite/rfm-dashboard/internal/config"
	"github.com/ignite/rfm-dashboard/internal/dataset"
	"github.com/ignite/rfm-dashboard/internal/session"
	"github.com/ignite/rfm-dashboard/internal/store"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the raw transaction dataset. Missing or unreadable data is
	// fatal: every endpoint depends on the fitted segmentation.
	source, err := dataset.FromConfig(ctx, cfg.Dataset)
	if err != nil {
		log.Fatalf("Failed to configure dataset source: %v", err)
	}
	loadCtx, loadCancel := context.WithTimeout(ctx, 2*time.Minute)
	txns, err := source.Load(loadCtx)
	loadCancel()
	if err != nil {
		log.Fatalf("Failed to load dataset (%s): %v", cfg.Dataset.Type, err)
	}
	log.Printf("Dataset loaded: %d raw transactions (%s)", len(txns), cfg.Dataset.Type)

	// Incremental store for manually classified customers
	incr := store.New(cfg.Store.Path)

	// Optional Redis snapshot cache
	var cache session.Cache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — snapshot cache disabled", cfg.Redis.Addr, err)
			redisClient.Close()
		} else {
			cache = session.NewRedisCache(redisClient, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
			defer redisClient.Close()
			log.Printf("Redis connected: %s (snapshot cache enabled, ttl %ds)", cfg.Redis.Addr, cfg.Redis.TTLSeconds)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured — snapshot cache disabled")
	}

	sess, err := session.New(txns, incr, session.Options{
		MinK:  cfg.Cluster.MinK,
		MaxK:  cfg.Cluster.MaxK,
		Cache: cache,
	})
	if err != nil {
		log.Fatalf("Failed to build session: %v", err)
	}

	// Warm the default fit so the first request doesn't pay for it
	snap, err := sess.Fit(ctx, cfg.Cluster.DefaultK)
	if err != nil {
		log.Fatalf("Initial fit (k=%d) failed: %v", cfg.Cluster.DefaultK, err)
	}
	log.Printf("Initial fit ready: k=%d, %d customers, reference date %s",
		snap.K, len(snap.Rows), snap.ReferenceDate.Format("2006-01-02"))

	handlers := api.NewHandlers(sess, cfg)
	router := api.SetupRoutes(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
