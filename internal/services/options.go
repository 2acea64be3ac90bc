package services

import (
	"context"
	"time"

	"agencyledger/internal/core"
	"agencyledger/internal/log"
	"agencyledger/internal/metrics"
)

// Publisher delivers committed ledger events. Delivery is best effort.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e core.LedgerEvent) error
}

type deps struct {
	logger    *log.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func() time.Time
}

// Option configures a service.
type Option func(*deps)

func WithLogger(l *log.Logger) Option {
	return func(d *deps) { d.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(d *deps) { d.publisher = p }
}

// WithClock overrides time.Now; timestamps are always stored in UTC.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

func newDeps(component string, opts []Option) deps {
	d := deps{now: time.Now}
	for _, opt := range opts {
		opt(&d)
	}
	if d.logger == nil {
		d.logger = log.Discard()
	}
	d.logger = d.logger.WithComponent(component)
	return d
}

func (d deps) clock() time.Time {
	return d.now().UTC()
}

// publish never fails the caller; the mutation has already committed.
func (d deps) publish(ctx context.Context, events ...core.LedgerEvent) {
	if d.publisher == nil {
		d.logger.DebugContext(ctx, "No publisher configured, skipping ledger events")
		return
	}
	for _, e := range events {
		if err := d.publisher.PublishLedgerEvent(ctx, e); err != nil {
			d.metrics.PublishFailed()
			d.logger.ErrorContext(ctx, "Failed to publish ledger event",
				log.FieldEventType, string(e.Type),
				log.FieldEntityID, e.EntityID.String(),
				log.FieldError, err)
		}
	}
}
