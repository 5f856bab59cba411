package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xdial/xdial/internal/api"
	"github.com/xdial/xdial/internal/config"
	"github.com/xdial/xdial/internal/crawl"
	"github.com/xdial/xdial/internal/database"
	"github.com/xdial/xdial/internal/llm"
	"github.com/xdial/xdial/internal/metrics"
	"github.com/xdial/xdial/internal/recording"
	"github.com/xdial/xdial/internal/store"
	"github.com/xdial/xdial/internal/telephony"
	"github.com/xdial/xdial/internal/transcribe"
	"github.com/xdial/xdial/internal/tree"
)

func main() {
	// Optional .env for local development; real deployments set env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting xdial",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"from_number", cfg.TwilioFromNumber,
	)

	// Open the local database and run migrations. Known targets always live
	// here; sessions do too unless an external backend is configured.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sessions := database.NewSessionRepository(db)
	targets := database.NewTargetRepository(db)

	backend, closeBackend, err := newSessionBackend(cfg, sessions)
	if err != nil {
		slog.Error("failed to initialize session backend", "error", err)
		os.Exit(1)
	}
	if closeBackend != nil {
		defer closeBackend()
	}
	st := store.New(backend)

	// Public URL for telephony callbacks: configured value, or discovered
	// from the local ngrok agent.
	var public telephony.PublicURLSource
	if cfg.PublicURL != "" {
		public = telephony.StaticURL(cfg.PublicURL)
	} else {
		public = telephony.NewNgrokURL(cfg.NgrokAPI)
		slog.Info("no public url configured, using ngrok discovery", "api", cfg.NgrokAPI)
	}

	dialer, err := telephony.NewTwilioDialer(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, public, logger)
	if err != nil {
		slog.Error("failed to create telephony dialer", "error", err)
		os.Exit(1)
	}

	fetcher, err := telephony.NewRecordingFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken, filepath.Join(cfg.DataDir, "recordings"), logger)
	if err != nil {
		slog.Error("failed to create recording fetcher", "error", err)
		os.Exit(1)
	}

	// Background context for retention cleanup, cancelled on shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	recording.StartCleanupTicker(appCtx, filepath.Join(cfg.DataDir, "recordings"), cfg.RecordingMaxDays, time.Hour)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	registry.MustRegister(metrics.NewCollector(sessions, time.Now()))

	crawler := crawl.New(crawl.Config{
		Store:         st,
		Classifier:    llm.NewOpenAIClassifier(cfg.OpenAIKey, cfg.OpenAIModel, recorder.ClassifierFailures, logger),
		Dialer:        dialer,
		Snapshots:     tree.NewSnapshotter(filepath.Join(cfg.DataDir, "trees")),
		Fetcher:       fetcher,
		Transcriber:   transcribe.NewWhisperTranscriber(cfg.OpenAIKey, cfg.WhisperModel, logger),
		Recorder:      recorder,
		Logger:        logger,
		GatherTimeout: cfg.GatherTimeout,
	})

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	handler := api.NewServer(cfg, st, crawler, targets, registry, jwtSecret, logger)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("xdial stopped")
}

// newSessionBackend picks the session store backend from configuration:
// Postgres when a DSN is set, Firebase when a database URL is set, and the
// embedded SQLite database otherwise.
func newSessionBackend(cfg *config.Config, sessions database.SessionRepository) (store.Backend, func() error, error) {
	switch {
	case cfg.PostgresURL != "":
		pg, err := store.NewPostgresBackend(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session store backend", "backend", "postgres")
		return pg, pg.Close, nil
	case cfg.FirebaseDBURL != "":
		fb, err := store.NewFirebaseBackend(context.Background(), cfg.FirebaseCredentials, cfg.FirebaseDBURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session store backend", "backend", "firebase")
		return fb, nil, nil
	default:
		slog.Info("session store backend", "backend", "sqlite")
		return store.NewSQLiteBackend(sessions), nil, nil
	}
}
