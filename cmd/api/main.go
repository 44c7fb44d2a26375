package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/facecheck/internal/api"
	"github.com/your-org/facecheck/internal/api/handlers"
	"github.com/your-org/facecheck/internal/api/ws"
	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/refstore"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
	"github.com/your-org/facecheck/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facecheck API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	checks := map[string]handlers.Check{"postgres": db.Ping}

	// Connect to MinIO. Snapshots are optional.
	var snapshots interface {
		enroll.SnapshotStore
		handlers.SnapshotStore
	}
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		snapshots = minioStore
		checks["minio"] = minioStore.Ping
	}

	// Reference store
	refs, err := refstore.Open(cfg.References, db)
	if err != nil {
		slog.Error("open reference store", "backend", cfg.References.Backend, "error", err)
		os.Exit(1)
	}
	defer refs.Close()

	// Connect to NATS
	nc, err := queue.Connect(cfg.NATS.URL, "facecheck-api")
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	producer, err := queue.NewProducer(nc)
	if err != nil {
		slog.Error("create nats producer", "error", err)
		os.Exit(1)
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}
	checks["nats"] = func(context.Context) error { return producer.Ping() }

	notify := func(identity string) {
		if err := producer.PublishReferencesChanged(identity); err != nil {
			slog.Warn("publish references changed", "identity", identity, "error", err)
		}
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Relay kiosk check-ins and display states to dashboard clients
	consumer, err := queue.NewConsumer(nc)
	if err != nil {
		slog.Error("create nats consumer", "error", err)
		os.Exit(1)
	}
	err = consumer.ConsumeCheckIns(ctx, "api-checkins", func(_ context.Context, ev models.CheckInEvent) error {
		hub.Broadcast(dto.WSMessage{Type: dto.WSTypeCheckIn, KioskID: ev.KioskID, Data: ev})
		return nil
	})
	if err != nil {
		slog.Warn("start check-in consumer", "error", err)
	}
	displaySub, err := consumer.SubscribeDisplay(func(ev models.DisplayEvent) {
		hub.Broadcast(dto.WSMessage{Type: dto.WSTypeDisplay, KioskID: ev.KioskID, Data: ev})
	})
	if err != nil {
		slog.Warn("subscribe kiosk display", "error", err)
	} else {
		defer displaySub.Unsubscribe()
	}

	// Face models. The API stays up without them; enrollment and recognition
	// answer 503 until they load.
	extractor := vision.NewExtractor(cfg.Vision)
	if err := extractor.Load(); err != nil {
		slog.Warn("face models unavailable, enrollment and recognition disabled", "error", err)
	}
	defer extractor.Close()
	checks["models"] = func(context.Context) error {
		if !extractor.Ready() {
			return vision.ErrNotReady
		}
		return nil
	}

	deps := enroll.Deps{
		Constraints: capture.Constraints{
			FacingMode: cfg.Capture.FacingMode,
			Width:      cfg.Capture.Width,
			Height:     cfg.Capture.Height,
		},
		Extractor:  extractor,
		Employees:  db,
		References: refs,
		Quota:      cfg.Attendance.EnrollmentQuota,
	}
	if snapshots != nil {
		deps.Snapshots = snapshots
	}
	sessions := enroll.NewSessions(deps, cfg.Attendance.SessionTTL)
	go sessions.Run(ctx)

	routerCfg := api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		References: refs,
		Sessions:   sessions,
		Extractor:  extractor,
		Threshold:  cfg.Attendance.MatchThreshold,
		Hub:        hub,
		Notify:     notify,
		Checks:     checks,
	}
	if snapshots != nil {
		routerCfg.Snapshots = snapshots
	}
	router := api.NewRouter(routerCfg)

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()
	if err := producer.Flush(shutdownCtx); err != nil {
		slog.Warn("flush nats", "error", err)
	}

	slog.Info("API server stopped")
}
