package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/capture/webcam"
	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/refstore"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	var form enroll.Form
	flag.StringVar(&form.Name, "name", "", "employee full name")
	flag.StringVar(&form.EmployeeKey, "key", "", "unique employee id")
	flag.StringVar(&form.Department, "department", "", "department")
	flag.StringVar(&form.Position, "position", "", "position (optional)")
	flag.StringVar(&form.Email, "email", "", "email (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := form.Normalize().Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, form, os.Stdin, os.Stdout); err != nil {
		slog.Error("enrollment failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, form enroll.Form, in io.Reader, out io.Writer) error {
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	refs, err := refstore.Open(cfg.References, db)
	if err != nil {
		return fmt.Errorf("open reference store: %w", err)
	}
	defer refs.Close()

	extractor := vision.NewExtractor(cfg.Vision)
	if err := extractor.Load(); err != nil {
		return fmt.Errorf("load face models: %w", err)
	}
	defer extractor.Close()

	var opener capture.Opener
	if capture.IsNetworkURL(cfg.Capture.Device) {
		opener = capture.NetworkOpener(cfg.Capture.Device, cfg.Capture.FPS)
	} else {
		opener = webcam.Opener(cfg.Capture.Device)
	}

	deps := enroll.Deps{
		Opener: opener,
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
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("connect to minio: %w", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		} else {
			deps.Snapshots = minioStore
		}
	}

	ctrl := enroll.NewController(deps)
	defer ctrl.Close()

	if err := capturePrompt(ctx, ctrl, in, out); err != nil {
		return err
	}

	emp, err := ctrl.Submit(ctx, form)
	if err != nil {
		return fmt.Errorf("register employee: %w", err)
	}
	fmt.Fprintf(out, "Registered %s (%s) with %d reference images.\n",
		emp.Name, emp.EmployeeKey, cfg.Attendance.EnrollmentQuota)

	if cfg.NATS.URL != "" {
		notifyKiosks(cfg.NATS.URL, emp.EmployeeKey)
	}
	return nil
}

// capturePrompt captures one frame per Enter until the quota is reached.
// "r" discards the captures so far.
func capturePrompt(ctx context.Context, ctrl *enroll.Controller, in io.Reader, out io.Writer) error {
	p, err := ctrl.Start(ctx)
	if err != nil {
		return fmt.Errorf("start camera: %w", err)
	}

	scanner := bufio.NewScanner(in)
	for p.State != enroll.QuotaReached {
		fmt.Fprintf(out, "Look at the camera and press Enter (%d/%d captured, r to reset): ", p.Captured, p.Quota)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return errors.New("input closed before capture finished")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if scanner.Text() == "r" {
			ctrl.Reset()
			if p, err = ctrl.Start(ctx); err != nil {
				return fmt.Errorf("restart capture: %w", err)
			}
			fmt.Fprintln(out, "Captures discarded.")
			continue
		}

		next, err := ctrl.Capture(ctx)
		switch {
		case errors.Is(err, enroll.ErrNoFaceDetected):
			fmt.Fprintln(out, "No face detected. Try again.")
		case err != nil:
			return fmt.Errorf("capture: %w", err)
		default:
			fmt.Fprintf(out, "Captured image %d.\n", next.Captured)
		}
		p = next
	}
	return nil
}

func notifyKiosks(url, identity string) {
	nc, err := queue.Connect(url, "facecheck-enroll")
	if err != nil {
		slog.Warn("connect to nats", "error", err)
		return
	}
	defer nc.Close()

	producer, err := queue.NewProducer(nc)
	if err != nil {
		slog.Warn("create nats producer", "error", err)
		return
	}
	if err := producer.PublishReferencesChanged(identity); err != nil {
		slog.Warn("publish references changed", "error", err)
		return
	}
	if err := nc.Flush(); err != nil {
		slog.Warn("flush nats", "error", err)
	}
}
