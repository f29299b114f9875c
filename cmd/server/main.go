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

	"mirrorgate/internal/aggregator"
	aggmetrics "mirrorgate/internal/aggregator/metrics"
	"mirrorgate/internal/audit"
	"mirrorgate/internal/biometric"
	biohandler "mirrorgate/internal/biometric/handler"
	biometrics "mirrorgate/internal/biometric/metrics"
	biostore "mirrorgate/internal/biometric/store"
	"mirrorgate/internal/bridge"
	bridgehandler "mirrorgate/internal/bridge/handler"
	bridgemetrics "mirrorgate/internal/bridge/metrics"
	bridgestore "mirrorgate/internal/bridge/store"
	"mirrorgate/internal/device"
	devicemetrics "mirrorgate/internal/device/metrics"
	devicestore "mirrorgate/internal/device/store"
	"mirrorgate/internal/mirror"
	mirrorhandler "mirrorgate/internal/mirror/handler"
	mirrormetrics "mirrorgate/internal/mirror/metrics"
	mirrorstore "mirrorgate/internal/mirror/store"
	"mirrorgate/internal/nonce"
	noncemetrics "mirrorgate/internal/nonce/metrics"
	noncestore "mirrorgate/internal/nonce/store"
	"mirrorgate/internal/platform/config"
	"mirrorgate/internal/platform/httpserver"
	"mirrorgate/internal/platform/logger"
	"mirrorgate/internal/platform/postgres"
	platformredis "mirrorgate/internal/platform/redis"
	"mirrorgate/internal/platform/tracing"
	httptransport "mirrorgate/internal/transport/http"
	id "mirrorgate/pkg/domain"
)

// main wires stores, engines and services together and owns the process
// lifecycle. Business logic lives in the internal feature packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Setup("mirrorgate")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit trail: persistent store plus an optional Kafka publisher.
	var auditStore audit.Store
	if db != nil {
		auditStore = audit.NewPostgresStore(db)
	} else {
		auditStore = audit.NewMemoryStore()
	}
	auditOpts := []audit.Option{audit.WithLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}
	pipeline := audit.NewPipeline(auditStore, auditOpts...)
	go func() {
		if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("audit pipeline stopped", "error", err)
		}
	}()

	// Biometric engines, one per modality.
	var templates biometric.TemplateStore
	if db != nil {
		templates = biostore.NewPostgres(db)
	} else {
		templates = biostore.NewMemory()
	}
	bioMetrics := biometrics.New()
	engines := make([]*biometric.Engine, 0, 3)
	for _, channel := range []struct {
		modality   id.Modality
		thresholds config.ModalityThresholds
	}{
		{id.ModalityVoice, cfg.Biometric.Voice},
		{id.ModalityFace, cfg.Biometric.Face},
		{id.ModalityBehavior, cfg.Biometric.Behavior},
	} {
		engine, err := biometric.NewEngine(channel.modality, channel.thresholds,
			cfg.Biometric.LivenessFloor, cfg.Biometric.TemplateKey, templates,
			biometric.WithLogger(log), biometric.WithMetrics(bioMetrics))
		if err != nil {
			return err
		}
		engines = append(engines, engine)
	}

	verifiers := make([]aggregator.Verifier, 0, len(engines))
	for _, engine := range engines {
		verifiers = append(verifiers, engine)
	}
	agg := aggregator.New(cfg.Biometric, verifiers,
		aggregator.WithLogger(log), aggregator.WithMetrics(aggmetrics.New()))

	// Device trust registry.
	var fingerprints device.FingerprintStore
	if db != nil {
		fingerprints = devicestore.NewPostgres(db)
	} else {
		fingerprints = devicestore.NewMemory()
	}
	registry := device.NewRegistry(cfg.Device, fingerprints,
		device.WithLogger(log), device.WithMetrics(devicemetrics.New()))

	// Nonce ledger with its background sweeper.
	var nonces nonce.Store
	if redisClient != nil {
		nonces = noncestore.NewRedis(redisClient.Client)
	} else {
		nonces = noncestore.NewMemory()
	}
	ledger := nonce.NewLedger(cfg.Nonce, nonces,
		nonce.WithLogger(log), nonce.WithMetrics(noncemetrics.New()))
	go ledger.RunSweeper(ctx)

	// Bridge session manager.
	var sessions bridge.SessionStore
	if redisClient != nil {
		sessions = bridgestore.NewRedis(redisClient.Client)
	} else {
		sessions = bridgestore.NewMemory()
	}
	bridgeService, err := bridge.NewService(cfg.Bridge, sessions, ledger, agg, registry,
		bridge.WithLogger(log), bridge.WithMetrics(bridgemetrics.New()))
	if err != nil {
		return err
	}

	// Mirror synchronizer over the two data stores.
	var (
		mirrorA mirror.Mirror
		mirrorB mirror.Mirror
		applied mirror.AppliedStore
	)
	if db != nil {
		mirrorA = mirror.NewPostgresMirror("primary", "mirror_a", db)
		mirrorB = mirror.NewPostgresMirror("companion", "mirror_b", db)
		applied = mirrorstore.NewPostgres(db)
	} else {
		mirrorA = mirror.NewMemoryMirror("primary", nil)
		mirrorB = mirror.NewMemoryMirror("companion", nil)
		applied = mirrorstore.NewMemory()
	}
	synchronizer := mirror.NewSynchronizer(cfg.Sync, mirrorA, mirrorB, ledger, sessions, applied,
		mirror.WithLogger(log), mirror.WithMetrics(mirrormetrics.New()))

	bioEngines := make([]biohandler.Engine, 0, len(engines))
	for _, engine := range engines {
		bioEngines = append(bioEngines, engine)
	}
	router := httptransport.NewRouter(cfg.Server,
		biohandler.New(bioEngines, pipeline, log),
		bridgehandler.New(bridgeService, registry, agg, pipeline, log),
		mirrorhandler.New(synchronizer, bridgeService, pipeline, log),
	)

	srv := httpserver.New(cfg.Server.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("mirrorgate listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
