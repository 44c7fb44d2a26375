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

type CheckInHandler func(ctx context.Context, ev models.CheckInEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(nc *nats.Conn) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeCheckIns delivers new check-ins from every kiosk to handler until ctx
// is cancelled. Malformed messages are terminated; handler errors are retried.
func (c *Consumer) ConsumeCheckIns(ctx context.Context, consumerName string, handler CheckInHandler) error {
	stream, err := c.js.Stream(ctx, CheckInsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", CheckInsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: CheckInsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var ev models.CheckInEvent
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					slog.Error("decode check-in", "subject", msg.Subject(), "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, ev); err != nil {
					slog.Error("process check-in", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("check-in consumer started", "consumer", consumerName)
	return nil
}

// SubscribeDisplay relays display updates from every kiosk.
func (c *Consumer) SubscribeDisplay(handler func(models.DisplayEvent)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(DisplaySubjectBase+".>", func(msg *nats.Msg) {
		var ev models.DisplayEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Debug("decode display event", "error", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe display: %w", err)
	}
	return sub, nil
}

// SubscribeReferencesChanged calls handler with the changed identity, or ""
// when the whole set was cleared.
func (c *Consumer) SubscribeReferencesChanged(handler func(identity string)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(ReferencesChangedSubject, func(msg *nats.Msg) {
		handler(string(msg.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe references: %w", err)
	}
	return sub, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
