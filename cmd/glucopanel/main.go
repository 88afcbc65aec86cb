package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/kmathis/glucopanel/internal/adapter/driven/eversense"
	mqttadapter "github.com/kmathis/glucopanel/internal/adapter/driven/mqtt"
	sqliteadapter "github.com/kmathis/glucopanel/internal/adapter/driven/sqlite"
	httphandler "github.com/kmathis/glucopanel/internal/adapter/driving/http"
	webhandler "github.com/kmathis/glucopanel/internal/adapter/driving/web"
	"github.com/kmathis/glucopanel/internal/application"
	"github.com/kmathis/glucopanel/internal/config"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration, with an optional .env for local development.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"demo", cfg.Demo,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	if cfg.SecretKey == nil {
		slog.Warn("GLUCOPANEL_SECRET_KEY not set, credential persistence disabled")
	}
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	readingStore := sqliteadapter.NewReadingRepo(db)

	var api driven.GlucoseAPI
	if cfg.Demo {
		api = eversense.NewDemoAPI(time.Now().UnixNano(), nil)
		slog.Info("demo mode: using synthesized glucose data")
	} else {
		api = eversense.New(cfg.LoginURL, cfg.APIURL)
	}

	var publisher driven.ReadingPublisher
	if cfg.MQTTEnabled() {
		publisher, err = mqttadapter.New(mqttadapter.Options{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		slog.Info("mqtt publisher connected", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
	}

	// 6. Create the session service, seeding bootstrap credentials so the
	// first silent login can succeed on a fresh database. In demo mode any
	// credentials work.
	sessionSvc := application.NewSessionService(api, credentialStore, cfg.HistoryWindow)
	switch {
	case cfg.HasBootstrapCredentials():
		sessionSvc.SeedCredentials(cfg.Username, cfg.Password, cfg.Remember)
		slog.Info("bootstrap credentials seeded", "username", cfg.Username)
	case cfg.Demo:
		sessionSvc.SeedCredentials("demo", "demo", false)
	}

	// 7. Create the websocket hub and poll service.
	hub := webhandler.NewHub(slog.Default())
	go hub.Run(ctx)

	pollSvc := application.NewPollService(
		sessionSvc,
		readingStore,
		publisher,
		hub,
		cfg.PollInterval,
		cfg.ErrorDisplay,
		cfg.HistoryWindow,
	)
	go pollSvc.Start(ctx)

	// 8. Register API and web routes on a shared mux.
	mux := http.NewServeMux()

	apiHandler := httphandler.NewHandler(pollSvc, slog.Default())
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	webHandler := webhandler.NewHandler(pollSvc, credentialStore, hub, slog.Default())
	webhandler.RegisterRoutes(mux, webHandler)

	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("glucopanel started", "listen_addr", cfg.ListenAddr, "poll_interval", cfg.PollInterval)

	// 9. Wait for shutdown signal, then drain the HTTP server.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
