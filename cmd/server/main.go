/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the permit service. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Open SQLite store
  3. Wire auth service and API handler
  4. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

ENVIRONMENT (prefix PERMITDESK_):
  ADDR, DB_PATH, JWT_SECRET (required), TOKEN_TTL, CORS_ORIGINS,
  READ_TIMEOUT, WRITE_TIMEOUT, IDLE_TIMEOUT

SEE ALSO:
  - config/config.go: Configuration struct
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/permitdesk/permitdesk/api"
	"github.com/permitdesk/permitdesk/auth"
	"github.com/permitdesk/permitdesk/config"
	"github.com/permitdesk/permitdesk/notify"
	"github.com/permitdesk/permitdesk/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	authSvc := auth.NewService(store, cfg.JWTSecret, cfg.TokenTTL, notify.Build)
	handler := api.NewHandler(store, authSvc)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
