/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ReqPath procurement server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment plus optional .env file)
  2. Initialize SQLite store and seed the system admin user
  3. Create file storage service for attachments
  4. Wire the API handler and chi router
  5. Start server with graceful shutdown

CONFIGURATION:
  REQPATH_ADDR                Listen address (default :8080)
  REQPATH_DB_PATH             SQLite file, ":memory:" for throwaways
  REQPATH_UPLOAD_DIR          Attachment root directory
  REQPATH_MAX_UPLOAD_MB       Per-file upload cap
  REQPATH_STATIC_API_KEYS     Comma-separated bootstrap keys
  REQPATH_CORS_ORIGINS        Allowed browser origins
  REQPATH_LOG_LEVEL           debug, info, warn, error

  The -addr and -db flags override their environment counterparts.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: configuration loading
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adukes40/ReqPath/api"
	"github.com/adukes40/ReqPath/config"
	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/storage"
	"github.com/adukes40/ReqPath/store/sqlite"
)

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log := config.NewLogger(cfg.LogLevel)

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	if err := seedSystemUser(store); err != nil {
		log.WithError(err).Fatal("failed to seed system user")
	}

	files := storage.New(cfg.UploadDir, cfg.MaxUploadBytes, cfg.AllowedExtensions)
	handler := api.NewHandler(store, files, log, cfg.StaticAPIKeys)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", *addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}
	log.Info("server stopped")
}

// seedSystemUser ensures the built-in admin exists. Static API keys resolve
// to this account; it also owns bootstrap-created data.
func seedSystemUser(store *sqlite.Store) error {
	ctx := context.Background()
	_, err := store.GetUser(ctx, api.SystemUserID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, procure.ErrUserNotFound) {
		return err
	}

	now := time.Now().UTC()
	return store.SaveUser(ctx, &procure.User{
		ID:        api.SystemUserID,
		Email:     api.SystemUserEmail,
		Name:      "System",
		Role:      procure.RoleAdmin,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}
