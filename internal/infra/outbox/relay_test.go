package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopcore/installment/internal/infra/events"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"github.com/shopcore/installment/internal/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) Append(ctx context.Context, event *model.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, relayID, batchSize, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OutboxEvent), args.Error(1)
}

func (m *MockOutboxStore) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	args := m.Called(ctx, id, errMsg, maxRetries)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error {
	args := m.Called(ctx, exchange, routingKey, messageID, body)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// recordingDispatcher fails for the configured event ids.
type recordingDispatcher struct {
	name   string
	failOn map[uuid.UUID]bool
	seen   []uuid.UUID
}

func (d *recordingDispatcher) Name() string { return d.name }

func (d *recordingDispatcher) Dispatch(ctx context.Context, event *model.OutboxEvent) error {
	d.seen = append(d.seen, event.ID)
	if d.failOn[event.ID] {
		return errors.New("broker unavailable")
	}
	return nil
}

func newEvent() *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "Order",
		AggregateID:   uuid.New(),
		EventType:     "OrderPaid",
		Payload:       []byte(`{"order_id":"x"}`),
		Status:        model.OutboxStatusInProgress,
		CreatedAt:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func testConfig() *Config {
	return &Config{RelayID: "relay-1", Interval: time.Second, BatchSize: 10, Lease: time.Minute, MaxRetries: 3}
}

func TestRelay_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("marks delivered events sent", func(t *testing.T) {
		store := new(MockOutboxStore)
		m := metrics.New("test", prometheus.NewRegistry())
		e1, e2 := newEvent(), newEvent()
		d := &recordingDispatcher{name: "bus"}

		store.On("LockBatch", ctx, "relay-1", 10, time.Minute).Return([]*model.OutboxEvent{e1, e2}, nil)
		store.On("MarkSent", ctx, []uuid.UUID{e1.ID, e2.ID}).Return(nil)

		relay := NewRelay(store, []outbound.EventDispatcherPort{d}, m, zap.NewNop(), testConfig())

		sent, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sent)
		assert.Equal(t, []uuid.UUID{e1.ID, e2.ID}, d.seen)
		assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxDispatchTotal.WithLabelValues("bus", "sent")))
		store.AssertExpectations(t)
	})

	t.Run("failed dispatch is retried later", func(t *testing.T) {
		store := new(MockOutboxStore)
		m := metrics.New("test", prometheus.NewRegistry())
		ok, bad := newEvent(), newEvent()
		bus := &recordingDispatcher{name: "bus"}
		broker := &recordingDispatcher{name: "rabbitmq", failOn: map[uuid.UUID]bool{bad.ID: true}}

		store.On("LockBatch", ctx, "relay-1", 10, time.Minute).Return([]*model.OutboxEvent{ok, bad}, nil)
		store.On("MarkFailed", ctx, bad.ID, mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, "rabbitmq: broker unavailable")
		}), 3).Return(nil)
		store.On("MarkSent", ctx, []uuid.UUID{ok.ID}).Return(nil)

		relay := NewRelay(store, []outbound.EventDispatcherPort{bus, broker}, m, zap.NewNop(), testConfig())

		sent, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Len(t, bus.seen, 2)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxDispatchTotal.WithLabelValues("rabbitmq", "failed")))
		store.AssertExpectations(t)
	})

	t.Run("empty batch", func(t *testing.T) {
		store := new(MockOutboxStore)
		store.On("LockBatch", ctx, "relay-1", 10, time.Minute).Return([]*model.OutboxEvent{}, nil)

		relay := NewRelay(store, nil, metrics.New("test", prometheus.NewRegistry()), zap.NewNop(), testConfig())

		sent, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
		store.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything)
	})

	t.Run("lock error", func(t *testing.T) {
		store := new(MockOutboxStore)
		store.On("LockBatch", ctx, "relay-1", 10, time.Minute).Return(nil, errors.New("db down"))

		relay := NewRelay(store, nil, metrics.New("test", prometheus.NewRegistry()), zap.NewNop(), testConfig())

		_, err := relay.RunOnce(ctx)
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("mark sent error", func(t *testing.T) {
		store := new(MockOutboxStore)
		e := newEvent()
		store.On("LockBatch", ctx, "relay-1", 10, time.Minute).Return([]*model.OutboxEvent{e}, nil)
		store.On("MarkSent", ctx, []uuid.UUID{e.ID}).Return(errors.New("db down"))

		relay := NewRelay(store, nil, metrics.New("test", prometheus.NewRegistry()), zap.NewNop(), testConfig())

		_, err := relay.RunOnce(ctx)
		assert.ErrorContains(t, err, "mark outbox events sent")
	})
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := NewRelay(new(MockOutboxStore), nil, metrics.New("test", prometheus.NewRegistry()), nil, &Config{})

	assert.NotEmpty(t, relay.config.RelayID)
	assert.Equal(t, 2*time.Second, relay.config.Interval)
	assert.Equal(t, 50, relay.config.BatchSize)
	assert.Equal(t, 30*time.Second, relay.config.Lease)
	assert.Equal(t, 10, relay.config.MaxRetries)
}

func TestRelay_StartStop(t *testing.T) {
	store := new(MockOutboxStore)
	store.On("LockBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]*model.OutboxEvent{}, nil).Maybe()

	relay := NewRelay(store, nil, metrics.New("test", prometheus.NewRegistry()), zap.NewNop(), testConfig())
	require.NoError(t, relay.Start())
	<-relay.Stop().Done()
}

func TestBusDispatcher(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	e := newEvent()

	var got events.Event
	bus.Register(events.NewHandlerFunc([]string{"OrderPaid"}, func(ctx context.Context, event events.Event) error {
		got = event
		return nil
	}))

	d := NewBusDispatcher(bus)
	require.NoError(t, d.Dispatch(context.Background(), e))
	require.NotNil(t, got)

	assert.Equal(t, e.ID, got.EventID())
	assert.Equal(t, "OrderPaid", got.EventType())
	assert.Equal(t, e.AggregateID, got.AggregateID())
	assert.Equal(t, e.CreatedAt, got.OccurredAt())

	env, ok := got.(*events.Envelope)
	require.True(t, ok)
	var payload struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "x", payload.OrderID)
}

func TestMessageDispatcher(t *testing.T) {
	ctx := context.Background()
	e := newEvent()

	t.Run("mapped routing key", func(t *testing.T) {
		pub := new(MockPublisher)
		pub.On("Publish", ctx, "order_events", "order.paid", e.ID.String(), e.Payload).Return(nil)

		d := NewMessageDispatcher(pub, "order_events", map[string]string{"OrderPaid": "order.paid"})
		require.NoError(t, d.Dispatch(ctx, e))
		pub.AssertExpectations(t)
	})

	t.Run("unmapped event type", func(t *testing.T) {
		pub := new(MockPublisher)
		pub.On("Publish", ctx, "order_events", "orderpaid", e.ID.String(), e.Payload).Return(errors.New("closed"))

		d := NewMessageDispatcher(pub, "order_events", nil)
		assert.EqualError(t, d.Dispatch(ctx, e), "closed")
	})
}
