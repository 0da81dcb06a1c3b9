package fulfillment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/ledger"
	"github.com/petmarket/escrow-hub/internal/ledger/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc     *Service
	store   ledger.Store
	clock   *testClock
	buyer   user.Actor
	seller  user.Actor
	admin   user.Actor
	product *product.Product
}

var (
	signingKey = []byte("incident-key")
	capturer   = user.System()
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fees, err := escrow.NewPercentFee("0.05", 0)
	require.NoError(t, err)
	return newFixtureWithFees(t, fees)
}

func newFixtureWithFees(t *testing.T, fees escrow.FeePolicy) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.NewStore(), fees)
}

func newFixtureOn(t *testing.T, store ledger.Store, fees escrow.FeePolicy) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(store, fees, Config{
		MaxConflictRetries: 20,
		ReleaseCooldown:    72 * time.Hour,
		IncidentSigningKey: signingKey,
		Clock:              clock.Now,
	}, zerolog.Nop())

	f := &fixture{
		svc:    svc,
		store:  store,
		clock:  clock,
		buyer:  user.Actor{UserID: uuid.New(), Role: user.RoleMember},
		seller: user.Actor{UserID: uuid.New(), Role: user.RoleMember},
		admin:  user.Actor{UserID: uuid.New(), Role: user.RoleAdmin},
	}
	p, err := svc.CreateProduct(context.Background(), f.seller, CreateProductInput{
		Name:      "Shiba Inu puppy",
		UnitPrice: 100000,
		Stock:     10,
	})
	require.NoError(t, err)
	f.product = p
	return f
}

// placeOrder creates the reference order: 2 x 100000 + 20000 shipping.
func (f *fixture) placeOrder(t *testing.T) *OrderView {
	t.Helper()
	v, err := f.svc.CreateOrder(context.Background(), f.buyer, CreateOrderInput{
		ProductID:     f.product.ProductID,
		Quantity:      2,
		ShippingFee:   20000,
		PaymentMethod: order.PaymentCard,
		Shipping:      order.Shipping{Name: "Ana", Phone: "0900000000", Address: "12 Le Loi, District 1"},
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) paidOrder(t *testing.T) *OrderView {
	t.Helper()
	v := f.placeOrder(t)
	v, err := f.svc.CapturePayment(context.Background(), capturer, CaptureInput{
		OrderID:   v.Order.OrderID,
		Amount:    v.Order.TotalPrice,
		Reference: "pay_" + v.Order.OrderID.String()[:8],
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) advance(t *testing.T, orderID uuid.UUID, statuses ...order.Status) *OrderView {
	t.Helper()
	var v *OrderView
	for _, st := range statuses {
		var err error
		v, err = f.svc.AdvanceOrder(context.Background(), f.seller, AdvanceInput{
			OrderID:        orderID,
			Status:         st,
			TrackingNumber: "VN123456789",
			Carrier:        "GHN",
		})
		require.NoError(t, err, "advance to %s", st)
	}
	return v
}

func (f *fixture) shippedOrder(t *testing.T) *OrderView {
	t.Helper()
	v := f.paidOrder(t)
	return f.advance(t, v.Order.OrderID, order.StatusConfirmed, order.StatusProcessing, order.StatusShipped)
}

func (f *fixture) deliveredOrder(t *testing.T) *OrderView {
	t.Helper()
	v := f.shippedOrder(t)
	return f.advance(t, v.Order.OrderID, order.StatusDelivered)
}

func (f *fixture) escrowOf(t *testing.T, orderID uuid.UUID) *escrow.Account {
	t.Helper()
	acc, err := f.store.GetEscrowByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, acc)
	return acc
}

func (f *fixture) orderOf(t *testing.T, orderID uuid.UUID) *order.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (f *fixture) pendingEvents(t *testing.T) int {
	t.Helper()
	events, err := f.store.ListPendingEvents(context.Background(), 0)
	require.NoError(t, err)
	return len(events)
}
