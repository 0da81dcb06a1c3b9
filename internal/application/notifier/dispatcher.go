// Package notifier drains the ledger outbox and fans committed change
// events out to the configured sinks with at-least-once semantics.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

// Dispatcher delivers pending outbox events. An event is marked delivered
// only after every sink accepted it, so a partial failure redelivers to all.
type Dispatcher struct {
	outbox ledger.Outbox
	sinks  []notification.Sink
	max    int
	now    func() time.Time
	tracer trace.Tracer
	logger zerolog.Logger
}

func NewDispatcher(outbox ledger.Outbox, sinks []notification.Sink, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		outbox: outbox,
		sinks:  sinks,
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer("github.com/petmarket/escrow-hub/internal/application/notifier"),
		logger: logger.With().Str("service", "notifier").Logger(),
	}
}

// SetMaxAttempts overrides the per-event attempt budget.
func (d *Dispatcher) SetMaxAttempts(n int) {
	d.max = n
}

// ProcessPending delivers up to limit pending or failed events and returns
// how many were delivered.
func (d *Dispatcher) ProcessPending(ctx context.Context, limit int) (int, error) {
	ctx, span := d.tracer.Start(ctx, "notifier.process_pending")
	defer span.End()

	events, err := d.outbox.ListPendingEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending events: %w", err)
	}
	span.SetAttributes(attribute.Int("notifier.batch", len(events)))

	delivered := 0
	for _, e := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := d.deliver(ctx, e); err != nil {
			d.logger.Warn().
				Str("event_id", e.EventID.String()).
				Str("entity_type", string(e.EntityType)).
				Int("attempts", e.Attempts).
				Err(err).
				Msg("event delivery failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e *notification.Event) error {
	if d.max > 0 {
		e.MaxAttempts = d.max
	}
	var sendErr error
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, e); err != nil {
			sendErr = errors.Join(sendErr, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	if sendErr != nil {
		if err := e.MarkFailed(sendErr.Error()); err != nil {
			return errors.Join(sendErr, err)
		}
		if e.Status == notification.StatusDead {
			d.logger.Error().
				Str("event_id", e.EventID.String()).
				Str("entity_id", e.EntityID.String()).
				Int("attempts", e.Attempts).
				Msg("event exhausted delivery attempts")
		}
	} else if err := e.MarkDelivered(d.now()); err != nil {
		return err
	}

	if err := d.outbox.UpdateEvent(ctx, e); err != nil {
		d.logger.Error().
			Str("event_id", e.EventID.String()).
			Err(err).
			Msg("failed to persist delivery status")
		return errors.Join(sendErr, err)
	}
	return sendErr
}

// Run polls the outbox until ctx is cancelled. Ticks where active reports
// false are skipped; a nil active always sweeps.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batch int, active func() bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if active != nil && !active() {
				continue
			}
			if _, err := d.ProcessPending(ctx, batch); err != nil && ctx.Err() == nil {
				d.logger.Error().Err(err).Msg("outbox sweep failed")
			}
		}
	}
}
