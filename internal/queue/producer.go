package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facecheck/internal/models"
)

const (
	CheckInsStreamName  = "CHECKINS"
	CheckInsSubjectBase = "checkins"
	// DisplaySubjectBase carries live kiosk screen updates over core NATS.
	DisplaySubjectBase = "kiosk.display"
	// ReferencesChangedSubject announces enrollments and reference deletions
	// so kiosks can reload their snapshot.
	ReferencesChangedSubject = "references.changed"
)

// Connect dials NATS, retrying in the background until the server is up.
func Connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

func CheckInSubject(kioskID string) string {
	return CheckInsSubjectBase + "." + kioskID
}

func DisplaySubject(kioskID string) string {
	return DisplaySubjectBase + "." + kioskID
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(nc *nats.Conn) (*Producer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the CHECKINS stream if it doesn't exist.
// Retries up to 30 times (1s apart) to ride out NATS startup.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        CheckInsStreamName,
		Subjects:    []string{CheckInsSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Description: "Attendance check-ins by kiosk",
	}

	const maxAttempts = 30
	for attempt := 1; ; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// PublishCheckIn publishes a stored check-in without waiting for the ack.
// The attendance ID is the message ID, so redelivered publishes are dropped.
func (p *Producer) PublishCheckIn(ev models.CheckInEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal check-in: %w", err)
	}
	_, err = p.js.PublishAsync(CheckInSubject(ev.KioskID), payload,
		jetstream.WithMsgID(ev.AttendanceID.String()))
	if err != nil {
		return fmt.Errorf("publish check-in: %w", err)
	}
	return nil
}

// PublishDisplay publishes a kiosk screen update via core NATS.
func (p *Producer) PublishDisplay(ev models.DisplayEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal display event: %w", err)
	}
	return p.nc.Publish(DisplaySubject(ev.KioskID), payload)
}

// PublishReferencesChanged tells kiosks that the reference set changed.
func (p *Producer) PublishReferencesChanged(identity string) error {
	return p.nc.Publish(ReferencesChangedSubject, []byte(identity))
}

// Flush waits for outstanding async check-in publishes.
func (p *Producer) Flush(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
