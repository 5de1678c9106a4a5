package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	s3 "checkout/aws"
	"checkout/database"
	"checkout/internal/audit"
	"checkout/internal/checkout"
	"checkout/internal/config"
	"checkout/internal/embed"
	"checkout/internal/handlers"
	"checkout/internal/payment/express/setup"
	utility "checkout/internal/utility"
	httpClient "checkout/internal/utility/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Credentials.Complete() {
		logger.Warn("Gateway credentials are incomplete, every setup call will be rejected")
	}

	transport := httpClient.NewHttpClient(httpClient.WithTimeout(cfg.GatewayTimeout))
	setupClient := setup.NewClient(transport, logger.Named("setup"))

	sinks := append(auditSinks(ctx, cfg, logger), audit.WithQueue(cfg.AuditQueueSize))
	recorder := audit.NewRecorder(logger.Named("audit"), sinks...)
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		recorder.Run(ctx)
	}()

	relay := embed.NewRelay(logger.Named("embed"))
	registry := checkout.NewRegistry(
		checkout.WithSessionTTL(cfg.SessionTTL),
		checkout.WithRemoveHook(relay.Remove),
	)

	api := handlers.NewCheckoutAPI(ctx, setupClient, registry, relay, recorder,
		utility.NewMailerFromEnv(), handlers.Settings{
			TokenSecret:      cfg.TokenSecret,
			TokenTTL:         cfg.TokenTTL,
			CompletedTTL:     cfg.CompletedSessionTTL,
			Credentials:      cfg.Credentials,
			MaxExpiryRetries: cfg.MaxExpiryRetries,
			RetryBaseDelay:   cfg.RetryBaseDelay,
			RetryMaxDelay:    cfg.RetryMaxDelay,
		}, logger.Named("checkout"))

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	api.Routes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Server is running", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server stopped", zap.Error(err))
	}

	registry.CloseAll()
	stop()
	<-auditDone
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// auditSinks connects the optional audit stores. A store that cannot be
// reached is skipped.
func auditSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) []audit.Option {
	var opts []audit.Option

	if cfg.MongoURI != "" {
		client, err := database.Connect(ctx, cfg.MongoURI)
		if err != nil {
			logger.Warn("Audit collection disabled", zap.Error(err))
		} else {
			opts = append(opts, audit.WithCollection(database.OpenCollection(client, cfg.MongoDatabase, cfg.AuditCollection)))
		}
	}

	if cfg.AuditBucket != "" {
		sess, err := s3.CreateSession(cfg.AWS)
		if err != nil {
			logger.Warn("Audit archive disabled", zap.Error(err))
		} else {
			opts = append(opts, audit.WithArchive(s3.NewUploader(sess), cfg.AuditBucket))
		}
	}

	return opts
}
