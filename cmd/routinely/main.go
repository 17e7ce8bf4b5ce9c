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

	"github.com/hfoster/routinely/internal/database"
	"github.com/hfoster/routinely/internal/logging"
	"github.com/hfoster/routinely/internal/server"
)

func main() {
	port := os.Getenv("ROUTINELY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("ROUTINELY_DB_PATH")
	if dbPath == "" {
		dbPath = "routinely.db"
	}

	logger := logging.Setup(os.Getenv("ROUTINELY_LOG_LEVEL"), os.Getenv("ROUTINELY_LOG_FORMAT"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		VAPIDPublicKey:  os.Getenv("ROUTINELY_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("ROUTINELY_VAPID_PRIVATE_KEY"),
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}

	srv := server.New(db, cfg, logger)
	defer srv.Close()

	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()
	defer close(cleanupDone)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Routinely running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
