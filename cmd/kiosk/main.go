package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/capture/webcam"
	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/recognize"
	"github.com/your-org/facecheck/internal/refstore"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "address for the metrics endpoint")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facecheck kiosk",
		"kiosk_id", cfg.Attendance.KioskID,
		"device", cfg.Capture.Device,
	)

	cutoff, err := recognize.ParseCutoff(cfg.Attendance.Cutoff)
	if err != nil {
		slog.Error("parse cutoff", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	refs, err := refstore.Open(cfg.References, db)
	if err != nil {
		slog.Error("open reference store", "backend", cfg.References.Backend, "error", err)
		os.Exit(1)
	}
	defer refs.Close()

	extractor := vision.NewExtractor(cfg.Vision)
	if err := extractor.Load(); err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	var opener capture.Opener
	if capture.IsNetworkURL(cfg.Capture.Device) {
		opener = capture.NetworkOpener(cfg.Capture.Device, cfg.Capture.FPS)
	} else {
		opener = webcam.Opener(cfg.Capture.Device)
	}

	observers := []recognize.Observer{newScreen(os.Stdout)}

	var consumer *queue.Consumer
	if cfg.NATS.URL != "" {
		nc, err := queue.Connect(cfg.NATS.URL, "facecheck-kiosk-"+cfg.Attendance.KioskID)
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
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := producer.Flush(flushCtx); err != nil {
				slog.Warn("flush nats", "error", err)
			}
		}()
		observers = append(observers, queue.NewKioskPublisher(producer))

		consumer, err = queue.NewConsumer(nc)
		if err != nil {
			slog.Error("create nats consumer", "error", err)
			os.Exit(1)
		}
	}

	loop := recognize.NewLoop(recognize.Deps{
		Opener:     opener,
		Extractor:  extractor,
		References: refs,
		Employees:  db,
		Attendance: db,
		Observers:  observers,
	}, recognize.Options{
		KioskID:       cfg.Attendance.KioskID,
		Threshold:     cfg.Attendance.MatchThreshold,
		Cutoff:        &cutoff,
		Cooldown:      cfg.Attendance.Cooldown,
		FrameInterval: cfg.Attendance.FrameInterval,
		Constraints: capture.Constraints{
			FacingMode: cfg.Capture.FacingMode,
			Width:      cfg.Capture.Width,
			Height:     cfg.Capture.Height,
		},
	})

	// New enrollments reach a running kiosk through NATS or SIGHUP.
	if consumer != nil {
		sub, err := consumer.SubscribeReferencesChanged(func(identity string) {
			slog.Info("references changed", "identity", identity)
			loop.Reload()
		})
		if err != nil {
			slog.Warn("subscribe references changed", "error", err)
		} else {
			defer sub.Unsubscribe()
		}
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				slog.Info("reload requested")
				loop.Reload()
			}
		}
	}()

	// Metrics HTTP server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		slog.Info("metrics server listening", "addr", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	runErr := loop.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}

	if runErr != nil {
		slog.Error("recognition loop", "error", runErr)
		os.Exit(1)
	}
	slog.Info("kiosk stopped")
}
