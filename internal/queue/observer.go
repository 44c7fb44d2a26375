package queue

import (
	"context"
	"log/slog"

	"github.com/your-org/facecheck/internal/models"
)

// KioskPublisher forwards recognition loop output to NATS.
type KioskPublisher struct {
	p *Producer
}

func NewKioskPublisher(p *Producer) *KioskPublisher {
	return &KioskPublisher{p: p}
}

func (k *KioskPublisher) Display(_ context.Context, ev models.DisplayEvent) {
	if err := k.p.PublishDisplay(ev); err != nil {
		slog.Debug("publish display", "error", err)
	}
}

func (k *KioskPublisher) CheckedIn(_ context.Context, ev models.CheckInEvent) {
	if err := k.p.PublishCheckIn(ev); err != nil {
		slog.Error("publish check-in", "employee_key", ev.EmployeeKey, "error", err)
	}
}
