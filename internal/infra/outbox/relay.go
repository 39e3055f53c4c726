package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"github.com/shopcore/installment/internal/utils/metrics"
	"go.uber.org/zap"
)

// Config contains relay configuration.
type Config struct {
	RelayID    string        `json:"relay_id" yaml:"relay_id"`
	Interval   time.Duration `json:"interval" yaml:"interval"`
	BatchSize  int           `json:"batch_size" yaml:"batch_size"`
	Lease      time.Duration `json:"lease" yaml:"lease"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *Config {
	return &Config{
		RelayID:    uuid.NewString(),
		Interval:   2 * time.Second,
		BatchSize:  50,
		Lease:      30 * time.Second,
		MaxRetries: 10,
	}
}

// Relay moves committed outbox events to their dispatchers.
// Delivery is at least once: an event is marked sent only after every
// dispatcher accepted it.
type Relay struct {
	store       outbound.OutboxDatabasePort
	dispatchers []outbound.EventDispatcherPort
	metrics     *metrics.Metrics
	logger      *zap.Logger
	config      *Config
	cron        *cron.Cron
}

// NewRelay creates a new outbox relay.
func NewRelay(
	store outbound.OutboxDatabasePort,
	dispatchers []outbound.EventDispatcherPort,
	m *metrics.Metrics,
	logger *zap.Logger,
	config *Config,
) *Relay {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.RelayID == "" {
		config.RelayID = defaults.RelayID
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("outbox-relay")

	cronLogger := cronLogger{logger.Sugar()}
	return &Relay{
		store:       store,
		dispatchers: dispatchers,
		metrics:     m,
		logger:      logger,
		config:      config,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
	}
}

// Start schedules the relay and starts the cron scheduler.
func (r *Relay) Start() error {
	schedule := fmt.Sprintf("@every %s", r.config.Interval)
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return fmt.Errorf("schedule outbox relay: %w", err)
	}
	r.cron.Start()

	r.logger.Info("outbox relay started",
		zap.String("relay_id", r.config.RelayID),
		zap.String("schedule", schedule),
		zap.Int("dispatchers", len(r.dispatchers)),
	)
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// batch has finished.
func (r *Relay) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Relay) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Lease)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("outbox relay run failed", zap.Error(err))
	}
}

// RunOnce leases one batch, dispatches it, and records the outcome.
// It returns the number of events marked sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	batch, err := r.store.LockBatch(ctx, r.config.RelayID, r.config.BatchSize, r.config.Lease)
	if err != nil {
		return 0, fmt.Errorf("lock outbox batch: %w", err)
	}
	r.metrics.RecordOutboxBatch(len(batch))
	if len(batch) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(batch))
	for _, event := range batch {
		if err := r.dispatch(ctx, event); err != nil {
			r.logger.Warn("outbox event delivery failed",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Int("retry_count", event.RetryCount),
				zap.Error(err),
			)
			if markErr := r.store.MarkFailed(ctx, event.ID, err.Error(), r.config.MaxRetries); markErr != nil {
				r.logger.Error("failed to record outbox failure",
					zap.String("event_id", event.ID.String()),
					zap.Error(markErr),
				)
			}
			continue
		}
		sent = append(sent, event.ID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, fmt.Errorf("mark outbox events sent: %w", err)
		}
	}

	r.logger.Debug("outbox batch relayed",
		zap.Int("leased", len(batch)),
		zap.Int("sent", len(sent)),
	)
	return len(sent), nil
}

func (r *Relay) dispatch(ctx context.Context, event *model.OutboxEvent) error {
	var errs []error
	for _, d := range r.dispatchers {
		err := d.Dispatch(ctx, event)
		r.metrics.RecordOutboxDispatch(d.Name(), err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
