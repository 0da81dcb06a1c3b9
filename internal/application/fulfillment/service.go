package fulfillment

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_scheduler.go -package=mocks . ReleaseScheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

const tracerName = "github.com/petmarket/escrow-hub/internal/application/fulfillment"

// ReleaseScheduler arranges an automatic escrow release once the
// post-delivery cooldown has elapsed.
type ReleaseScheduler interface {
	ScheduleRelease(ctx context.Context, orderID uuid.UUID, releaseAt time.Time) error
}

// Config tunes the coordinator.
type Config struct {
	MaxConflictRetries int
	ReleaseCooldown    time.Duration
	IncidentSigningKey []byte
	Clock              func() time.Time
}

// Service is the workflow coordinator. It is the only writer that spans
// orders, escrow accounts, disputes and reviews in one commit.
type Service struct {
	store     ledger.Store
	fees      escrow.FeePolicy
	scheduler ReleaseScheduler
	cfg       Config
	tracer    trace.Tracer
	logger    zerolog.Logger
}

func NewService(store ledger.Store, fees escrow.FeePolicy, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = 0
	}
	if cfg.ReleaseCooldown <= 0 {
		cfg.ReleaseCooldown = 72 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:  store,
		fees:   fees,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		logger: logger.With().Str("service", "fulfillment").Logger(),
	}
}

// SetReleaseScheduler enables durable auto-release scheduling on delivery.
func (s *Service) SetReleaseScheduler(sch ReleaseScheduler) {
	s.scheduler = sch
}

// ReleaseCooldown is the wait between delivery and automatic release.
func (s *Service) ReleaseCooldown() time.Duration {
	return s.cfg.ReleaseCooldown
}

func (s *Service) now() time.Time {
	return s.cfg.Clock().UTC()
}

// OrderView is an order with its escrow and dispute history.
type OrderView struct {
	Order    *order.Order       `json:"order"`
	Escrow   *escrow.Account    `json:"escrow"`
	Disputes []*dispute.Dispute `json:"disputes,omitempty"`
	Review   *review.Review     `json:"review,omitempty"`
}

// txn is one read-modify-write attempt. It returns the writes to commit.
type txn func(ctx context.Context) (*ledger.ChangeSet, error)

// transact runs fn and commits its change set, re-reading on version
// conflicts. Pinned calls carry a client version and are never retried.
func (s *Service) transact(ctx context.Context, op Operation, actor user.Actor, orderID uuid.UUID, pinned bool, fn txn) error {
	ctx, span := s.tracer.Start(ctx, "fulfillment."+string(op), trace.WithAttributes(
		attribute.String("fulfillment.operation", string(op)),
		attribute.String("fulfillment.order_id", orderID.String()),
		attribute.String("fulfillment.actor", actor.String()),
	))
	defer span.End()

	attempts := s.cfg.MaxConflictRetries + 1
	if pinned {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			break
		}
		var cs *ledger.ChangeSet
		cs, err = fn(ctx)
		if err == nil && cs != nil && !cs.IsEmpty() {
			err = s.store.Commit(ctx, cs)
		}
		if err == nil {
			span.SetAttributes(attribute.Int("fulfillment.attempts", attempt))
			return nil
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt == attempts {
			break
		}
		s.logger.Debug().
			Str("operation", string(op)).
			Str("order_id", orderID.String()).
			Int("attempt", attempt).
			Msg("version conflict, retrying")
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	if errors.Is(err, apperr.ErrLedgerIntegrity) {
		s.recordIncident(ctx, op, actor, orderID, err)
	}
	return err
}

// recordIncident persists an integrity failure and alerts admins. It runs in
// its own commit because the triggering transaction was aborted.
func (s *Service) recordIncident(ctx context.Context, op Operation, actor user.Actor, orderID uuid.UUID, cause error) {
	e, ok := apperr.As(cause)
	if !ok {
		e = apperr.Integrity(cause.Error(), nil)
	}
	s.logger.Error().
		Err(cause).
		Str("operation", string(op)).
		Str("order_id", orderID.String()).
		Str("actor", actor.String()).
		Interface("detail", e.Metadata).
		Msg("ledger integrity violation, transaction aborted")

	if orderID == uuid.Nil {
		if id, err := uuid.Parse(e.Metadata["orderId"]); err == nil {
			orderID = id
		}
	}
	now := s.now()
	in := incident.New(string(e.Code), orderID, string(op), actor.String(), e.Message, e.Metadata, now)
	if len(s.cfg.IncidentSigningKey) > 0 {
		if sig, err := incident.Sign(in, s.cfg.IncidentSigningKey); err == nil {
			in.Signature = sig
		}
	}
	cs := &ledger.ChangeSet{}
	cs.Record(in)
	cs.Emit(notification.NewEvent(notification.EntityIncident, in.IncidentID,
		notification.Subject{OrderID: orderID}, 1, "", string(e.Code), actor.String(), now))
	if err := s.store.Commit(context.WithoutCancel(ctx), cs); err != nil {
		s.logger.Error().Err(err).Str("incident_id", in.IncidentID.String()).Msg("failed to record incident")
	}
}

func subjectOf(o *order.Order) notification.Subject {
	return notification.Subject{OrderID: o.OrderID, BuyerID: o.BuyerID, SellerID: o.SellerID}
}

// checkPinned rejects a call whose client-observed version is stale.
func checkPinned(entity string, id uuid.UUID, expected, current int64) error {
	if expected != 0 && expected != current {
		return apperr.Conflict(entity, id.String())
	}
	return nil
}

// orderOfDispute looks up the order a dispute belongs to so the transaction
// span and any incident carry it. Read errors resurface inside the transaction.
func (s *Service) orderOfDispute(ctx context.Context, disputeID uuid.UUID) uuid.UUID {
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil || d == nil {
		return uuid.Nil
	}
	return d.OrderID
}

func (s *Service) orderOfReview(ctx context.Context, reviewID uuid.UUID) uuid.UUID {
	r, err := s.store.GetReview(ctx, reviewID)
	if err != nil || r == nil {
		return uuid.Nil
	}
	return r.OrderID
}

func (s *Service) loadOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, *escrow.Account, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o == nil {
		return nil, nil, apperr.NotFound("order")
	}
	acc, err := s.store.GetEscrowByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return nil, nil, apperr.Integrity("order has no escrow account", map[string]string{"orderId": orderID.String()})
	}
	return o, acc, nil
}
