package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cordum/zipmark/core/dispatch"
	"github.com/cordum/zipmark/core/infra/bus"
	"github.com/cordum/zipmark/core/infra/buildinfo"
	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/infra/locks"
	"github.com/cordum/zipmark/core/infra/logging"
	"github.com/cordum/zipmark/core/infra/metrics"
	"github.com/cordum/zipmark/core/receipts"
	"github.com/cordum/zipmark/core/rules"
	"github.com/cordum/zipmark/core/staging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	serviceName    = "zipmark.worker"
	healthInterval = 5 * time.Second
)

// Run starts the worker and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	prom := metrics.NewProm("zipmark")

	lockStore, err := locks.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis for locks: %w", err)
	}
	defer lockStore.Close()

	source, closeSource, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	receiptStore, err := receipts.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis for receipts: %w", err)
	}
	defer receiptStore.Close()

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer natsBus.Close()

	stager := staging.NewStager(cfg.StagingDir, lockStore, cfg.LockTTL)
	janitor := staging.NewJanitor(stager, cfg.StagingRetention, cfg.CleanupInterval, prom)
	go janitor.Start(ctx)

	d := dispatch.New(stager, source).WithReceipts(receiptStore).WithMetrics(prom)
	if err := New(natsBus, d).Start(); err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.SubjectRequest, err)
	}

	healthSrv := health.NewServer()
	go watchBus(ctx, natsBus, healthSrv)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	go func() {
		logging.Info(logComponent, "grpc health listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logging.Error(logComponent, "grpc server error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newMux(natsBus),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logging.Info(logComponent, "http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(logComponent, "http server error", "error", err)
		}
	}()

	logging.Info(logComponent, "worker ready",
		"nats", natsBus.ConnectedURL(),
		"staging", cfg.StagingDir,
		"rules", rulesOrigin(cfg),
	)
	<-ctx.Done()

	logging.Info(logComponent, "shutting down")
	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	return nil
}

func openSource(cfg *config.Config) (rules.Source, func(), error) {
	if cfg.RulesPath != "" {
		src, err := rules.LoadFile(cfg.RulesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load rules %s: %w", cfg.RulesPath, err)
		}
		return src, func() {}, nil
	}
	store, err := rules.NewStore(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis for rules: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func rulesOrigin(cfg *config.Config) string {
	if cfg.RulesPath != "" {
		return cfg.RulesPath
	}
	return "redis"
}

type busStatus interface {
	IsConnected() bool
	Status() string
}

func watchBus(ctx context.Context, b busStatus, srv *health.Server) {
	update := func() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if b.IsConnected() {
			status = healthpb.HealthCheckResponse_SERVING
		}
		srv.SetServingStatus("", status)
		srv.SetServingStatus(serviceName, status)
	}
	update()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func newMux(b busStatus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{
			"status":  "ok",
			"nats":    b.Status(),
			"version": buildinfo.Version,
		}
		code := http.StatusOK
		if !b.IsConnected() {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}
