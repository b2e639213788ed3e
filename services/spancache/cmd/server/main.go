package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Mirascope/spancache/pkg/config"
	"github.com/Mirascope/spancache/pkg/grpcutil"
	"github.com/Mirascope/spancache/pkg/spankv"
	"github.com/Mirascope/spancache/pkg/telemetry"
	"github.com/Mirascope/spancache/services/spancache"
)

const serviceName = "spancache"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:     serviceName,
		ServiceVersion:  cfg.Version,
		Environment:     cfg.Environment,
		OTLPEndpoint:    cfg.OTLPEndpoint,
		TracingEnabled:  cfg.TracingEnabled,
		TracingSampling: cfg.TracingSampling,
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tp.Shutdown(context.Background())

	logger := tp.Logger()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	svc := spancache.NewService(store, spancache.Config{
		TTL:      cfg.CacheTTL,
		MaxItems: cfg.CacheMaxItems,
		MaxBytes: cfg.CacheMaxBytes,
	}, logger, spancache.NewMetrics(registry))

	// OTLP ingest over gRPC.
	serverCfg := grpcutil.DefaultServerConfig(cfg.GRPCPort, serviceName)
	serverCfg.UnaryInterceptors = []grpc.UnaryServerInterceptor{
		grpcutil.TimeoutUnaryInterceptor(30 * time.Second),
	}
	grpcServer := grpcutil.NewServer(serverCfg, logger)
	spancache.NewOTLPServer(svc, logger).Register(grpcServer.GRPCServer())

	// Query surface over HTTP JSON, plus metrics.
	router := mux.NewRouter()
	spancache.NewHandler(svc, logger).Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		errCh <- grpcServer.Run(ctx)
	}()

	logger.Info("starting spancache service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"storage", string(cfg.StorageBackend),
		"env", cfg.Environment,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			shutdownHTTP(httpServer, logger)
			return err
		}
	}

	shutdownHTTP(httpServer, logger)
	return nil
}

func shutdownHTTP(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Info("shutting down HTTP server")
	_ = srv.Shutdown(ctx)
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (spankv.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageBadger:
		return spankv.OpenBadger(cfg.BadgerPath)
	case config.StorageRedis:
		redisCfg := spankv.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return spankv.ConnectRedis(ctx, redisCfg)
	default:
		return spankv.NewMemoryStore(), nil
	}
}
