package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/aps"
	"github.com/stanstork/designauto/internal/auth"
	"github.com/stanstork/designauto/internal/config"
	"github.com/stanstork/designauto/internal/discovery"
	"github.com/stanstork/designauto/internal/handlers"
	"github.com/stanstork/designauto/internal/middleware"
	"github.com/stanstork/designauto/internal/registrar"
	"github.com/stanstork/designauto/internal/routes"
	"github.com/stanstork/designauto/internal/storage"
	"github.com/stanstork/designauto/internal/transport"
	"github.com/stanstork/designauto/internal/workitem"
)

type application struct {
	config *config.Config
	client *aps.Client
	store  storage.Gateway
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	ctx := context.Background()
	if cfg.APS.ClientSecret == "" {
		secrets, err := config.NewAWSSecrets(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure secret resolution")
		}
		if err := cfg.ResolveClientSecret(ctx, secrets); err != nil {
			logger.Fatal().Err(err).Msg("Failed to resolve client secret")
		}
	}

	// Platform client: one resilient HTTP client shared by authentication
	// and every API call. Transfers to signed storage urls stream through a
	// plain client so large files are neither buffered nor cut off.
	httpClient := transport.NewClient(cfg.Transport, logger)
	uploadClient := &http.Client{Transport: http.DefaultTransport}
	exchanger := auth.NewTwoLegged(httpClient, cfg.APS.BaseURL, cfg.APS.ClientID, cfg.APS.ClientSecret, auth.DefaultScopes, logger)
	tokens := auth.NewCache(exchanger)
	client := aps.NewClient(httpClient, cfg.APS.BaseURL, tokens, logger, aps.WithRegion(cfg.APS.Region), aps.WithUploadClient(uploadClient))

	store, err := newStorage(cfg, client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure storage")
	}

	app := &application{
		config: cfg,
		client: client,
		store:  store,
		logger: logger,
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"*"}),
		h.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

func newStorage(cfg *config.Config, client *aps.Client, logger zerolog.Logger) (storage.Gateway, error) {
	switch cfg.Storage.Driver {
	case config.StorageS3:
		return storage.NewS3(cfg.Storage.S3, cfg.Storage.UploadTTL, logger)
	default:
		return storage.NewOSS(client, cfg.Storage.Policy, cfg.Storage.UploadTTL, logger), nil
	}
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	cfg := app.config

	// Services
	catalog := discovery.New(app.client, cfg.BundlesDir, cfg.APS.Nickname, logger)
	reg := registrar.New(app.client, cfg.BundlesDir, cfg.APS.Nickname, cfg.APS.Alias, logger)
	submitter := workitem.NewSubmitter(app.client, app.store, cfg.APS.Bucket, cfg.APS.Nickname, logger)

	// Handlers
	setupHandler := handlers.NewSetupHandler(catalog, reg, logger)
	workItemHandler := handlers.NewWorkItemHandler(submitter, app.store, handlers.WorkItemOptions{
		Bucket:       cfg.APS.Bucket,
		DownloadTTL:  cfg.Storage.DownloadTTL,
		PollInterval: cfg.WorkItems.PollInterval,
		WaitTimeout:  cfg.WorkItems.WaitTimeout,
	}, logger)

	return routes.NewRouter(setupHandler, workItemHandler, cfg.WebRoot)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("nickname", app.config.APS.Nickname).
			Str("alias", app.config.APS.Alias).
			Str("bucket", app.config.APS.Bucket).
			Str("storage", app.config.Storage.Driver).
			Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
