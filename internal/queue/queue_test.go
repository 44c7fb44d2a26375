package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facecheck/internal/models"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "checkins.lobby", CheckInSubject("lobby"))
	assert.Equal(t, "kiosk.display.lobby", DisplaySubject("lobby"))
}

// startNATS runs an in-process JetStream server for the test.
func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go ns.Start()
	t.Cleanup(ns.Shutdown)
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")

	nc, err := Connect(ns.ClientURL(), "queue-test")
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type checkInSink struct {
	mu     sync.Mutex
	events []models.CheckInEvent
}

func (s *checkInSink) handle(_ context.Context, ev models.CheckInEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *checkInSink) received() []models.CheckInEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CheckInEvent(nil), s.events...)
}

func newCheckIn(kiosk, key string) models.CheckInEvent {
	return models.CheckInEvent{
		AttendanceID:    uuid.New(),
		KioskID:         kiosk,
		EmployeeKey:     key,
		Name:            "Ana Lopez",
		Department:      "Ops",
		Timestamp:       time.Date(2026, 3, 2, 8, 41, 0, 0, time.UTC),
		Date:            "2026-03-02",
		ConfidenceScore: 90,
		Distance:        0.1,
		Status:          models.StatusPresent,
	}
}

func TestCheckIns_PublishConsumeAndDedup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	nc := startNATS(t)

	producer, err := NewProducer(nc)
	require.NoError(t, err)
	require.NoError(t, producer.EnsureStreams(ctx))
	// idempotent
	require.NoError(t, producer.EnsureStreams(ctx))

	consumer, err := NewConsumer(nc)
	require.NoError(t, err)
	sink := &checkInSink{}
	require.NoError(t, consumer.ConsumeCheckIns(ctx, "test-checkins", sink.handle))

	first := newCheckIn("lobby", "E-1")
	second := newCheckIn("gate", "E-2")
	require.NoError(t, producer.PublishCheckIn(first))
	// a republish of the same attendance record is dropped by the stream
	require.NoError(t, producer.PublishCheckIn(first))
	require.NoError(t, producer.PublishCheckIn(second))
	require.NoError(t, producer.Flush(ctx))

	require.Eventually(t, func() bool { return len(sink.received()) == 2 },
		10*time.Second, 20*time.Millisecond)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := js.Stream(ctx, CheckInsStreamName)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)

	got := sink.received()
	assert.Equal(t, first.AttendanceID, got[0].AttendanceID)
	assert.Equal(t, "E-1", got[0].EmployeeKey)
	assert.Equal(t, models.StatusPresent, got[0].Status)
	assert.Equal(t, "gate", got[1].KioskID)

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, sink.received(), 2, "duplicate delivered")
}

func TestKioskPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	nc := startNATS(t)

	producer, err := NewProducer(nc)
	require.NoError(t, err)
	require.NoError(t, producer.EnsureStreams(ctx))
	consumer, err := NewConsumer(nc)
	require.NoError(t, err)

	sink := &checkInSink{}
	require.NoError(t, consumer.ConsumeCheckIns(ctx, "test-kiosk", sink.handle))

	displays := make(chan models.DisplayEvent, 4)
	sub, err := consumer.SubscribeDisplay(func(ev models.DisplayEvent) { displays <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	pub := NewKioskPublisher(producer)
	pub.Display(ctx, models.DisplayEvent{KioskID: "lobby", State: models.DisplayCheckedIn, Name: "Ana Lopez"})
	pub.CheckedIn(ctx, newCheckIn("lobby", "E-1"))
	require.NoError(t, producer.Flush(ctx))

	select {
	case ev := <-displays:
		assert.Equal(t, "lobby", ev.KioskID)
		assert.Equal(t, models.DisplayCheckedIn, ev.State)
		assert.Equal(t, "Ana Lopez", ev.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("display event not delivered")
	}
	require.Eventually(t, func() bool { return len(sink.received()) == 1 },
		10*time.Second, 20*time.Millisecond)
}

func TestReferencesChanged(t *testing.T) {
	nc := startNATS(t)
	producer, err := NewProducer(nc)
	require.NoError(t, err)
	consumer, err := NewConsumer(nc)
	require.NoError(t, err)

	got := make(chan string, 2)
	sub, err := consumer.SubscribeReferencesChanged(func(identity string) { got <- identity })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	require.NoError(t, producer.PublishReferencesChanged("E-7"))
	require.NoError(t, producer.PublishReferencesChanged(""))

	for _, want := range []string{"E-7", ""} {
		select {
		case identity := <-got:
			assert.Equal(t, want, identity)
		case <-time.After(5 * time.Second):
			t.Fatalf("references.changed %q not delivered", want)
		}
	}
}
