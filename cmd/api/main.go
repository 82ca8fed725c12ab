// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/catalog"
	"github.com/capitalize-ai/social-inbox/internal/config"
	"github.com/capitalize-ai/social-inbox/internal/filter"
	"github.com/capitalize-ai/social-inbox/internal/handler"
	"github.com/capitalize-ai/social-inbox/internal/middleware"
	"github.com/capitalize-ai/social-inbox/internal/notify"
	"github.com/capitalize-ai/social-inbox/internal/service"
	"github.com/capitalize-ai/social-inbox/internal/store"
	"github.com/capitalize-ai/social-inbox/internal/store/memory"
	"github.com/capitalize-ai/social-inbox/internal/store/sqlstore"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server", zap.String("store", cfg.StoreDriver))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "social-inbox", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	seed, err := catalog.Load(cfg.FieldCatalogFile)
	if err != nil {
		log.Fatal("failed to load field catalog", zap.Error(err))
	}

	st, err := openStore(cfg, seed)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	policy, err := filter.ParsePolicyFromString(cfg.FilterParsePolicy)
	if err != nil {
		log.Fatal("invalid filter parse policy", zap.Error(err))
	}
	compiler := filter.NewCompiler(filter.WithPolicy(policy), filter.WithLogger(log))

	// Events go to JetStream when NATS is enabled and to the log otherwise.
	var (
		notifier notify.Notifier = notify.NewLogNotifier(log)
		feed     notify.Feed
		natsConn handler.Connection
	)
	if cfg.NATSEnabled {
		natsClient, err := notify.Connect(ctx, notify.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := notify.NewStreamManager(natsClient, log)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		go recordStreamState(ctx, streamManager, log)

		notifier, feed, natsConn = streamManager, streamManager, natsClient
	}

	opts := []service.Option{
		service.WithDepartments(cfg.DepartmentsEnabled),
		service.WithSearchLimit(cfg.SearchDefaultLimit),
	}
	conversationSvc := service.NewConversationService(st, compiler, notifier, log, opts...)
	filterSvc := service.NewFilterService(st, compiler, log, opts...)

	healthHandler := handler.NewHealthHandler(st, natsConn)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	filterHandler := handler.NewFilterHandler(filterSvc, log)
	streamHandler := handler.NewStreamHandler(feed, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.TrackActor)
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		handler.Mount(r, conversationHandler, filterHandler, streamHandler)
	})

	// WriteTimeout stays zero for the SSE feed; handlers bound their own work.
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     r,
		ReadTimeout: cfg.ServerReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func openStore(cfg *config.Config, seed store.Seed) (store.Store, error) {
	if cfg.StoreDriver == config.StoreSQLite {
		return sqlstore.Open(cfg.SQLiteDSN, seed)
	}
	return memory.New(seed), nil
}

// recordStreamState refreshes the stream gauges once a minute.
func recordStreamState(ctx context.Context, m *notify.StreamManager, log *logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RecordState(ctx); err != nil {
				log.Warn("failed to read stream state", zap.Error(err))
			}
		}
	}
}
