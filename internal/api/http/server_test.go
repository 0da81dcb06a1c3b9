package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAuth "github.com/petmarket/escrow-hub/internal/application/auth"
	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/infrastructure/sse"
	"github.com/petmarket/escrow-hub/internal/ledger/memory"
)

type apiFixture struct {
	t      *testing.T
	srv    *httptest.Server
	auth   *appAuth.Service
	buyer  string
	seller string
	admin  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	fees, err := escrow.NewPercentFee("0.05", 0)
	require.NoError(t, err)
	svc := fulfillment.NewService(memory.NewStore(), fees, fulfillment.Config{MaxConflictRetries: 3}, zerolog.Nop())
	authSvc, err := appAuth.NewService("token-secret", "payment-secret", zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(svc, authSvc, sse.NewHub(zerolog.Nop()), zerolog.Nop()).Router())
	t.Cleanup(srv.Close)

	f := &apiFixture{t: t, srv: srv, auth: authSvc}
	f.buyer = f.token(user.RoleMember)
	f.seller = f.token(user.RoleMember)
	f.admin = f.token(user.RoleAdmin)
	return f
}

func (f *apiFixture) token(role user.Role) string {
	tok, err := f.auth.IssueToken(uuid.New(), role, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *apiFixture) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	f.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(f.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func field(t *testing.T, m map[string]interface{}, path ...string) interface{} {
	t.Helper()
	var cur interface{} = m
	for _, p := range path {
		obj, ok := cur.(map[string]interface{})
		require.True(t, ok, "no object at %q", p)
		cur = obj[p]
	}
	return cur
}

// placePaidOrder lists a product, orders it and captures payment.
func (f *apiFixture) placePaidOrder() string {
	t := f.t
	status, product := f.do(http.MethodPost, "/v1/products", f.seller, map[string]interface{}{
		"name": "Shiba Inu puppy", "unitPrice": 100000, "stock": 3,
	})
	require.Equal(t, http.StatusCreated, status)

	status, view := f.do(http.MethodPost, "/v1/orders", f.buyer, map[string]interface{}{
		"productId":     product["productId"],
		"quantity":      1,
		"shippingFee":   20000,
		"paymentMethod": "card",
		"shipping":      map[string]string{"name": "Ana", "phone": "0900000000", "address": "12 Le Loi"},
	})
	require.Equal(t, http.StatusCreated, status)
	orderID := field(t, view, "order", "orderId").(string)
	finalPrice := int64(field(t, view, "order", "finalPrice").(float64))

	signal, err := f.auth.SignPaymentSignal(appAuth.PaymentSignal{
		OrderID: uuid.MustParse(orderID), Amount: finalPrice, Reference: "pay_1",
	}, time.Minute)
	require.NoError(t, err)
	status, view = f.do(http.MethodPost, "/v1/payments/capture", "", map[string]string{"signal": signal})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "escrowed", field(t, view, "escrow", "status"))
	return orderID
}

func (f *apiFixture) deliver(orderID string) {
	for _, body := range []map[string]interface{}{
		{"status": "confirmed"},
		{"status": "processing"},
		{"status": "shipped", "trackingNumber": "VN123", "carrier": "GHN"},
		{"status": "delivered"},
	} {
		status, resp := f.do(http.MethodPost, "/v1/orders/"+orderID+"/status", f.seller, body)
		require.Equal(f.t, http.StatusOK, status, resp)
	}
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
}

func TestRequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(http.MethodGet, "/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", body["error"])

	status, _ = f.do(http.MethodGet, "/v1/orders", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestFulfillmentFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	orderID := f.placePaidOrder()
	f.deliver(orderID)

	status, view := f.do(http.MethodPost, "/v1/orders/"+orderID+"/confirm-receipt", f.buyer, nil)
	require.Equal(t, http.StatusOK, status, view)
	assert.Equal(t, "released", field(t, view, "escrow", "status"))

	status, rv := f.do(http.MethodPost, "/v1/orders/"+orderID+"/reviews", f.buyer, map[string]interface{}{
		"rating": 5, "comment": "healthy and happy",
	})
	require.Equal(t, http.StatusCreated, status, rv)

	status, dup := f.do(http.MethodPost, "/v1/orders/"+orderID+"/reviews", f.buyer, map[string]interface{}{"rating": 4})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_REVIEW", dup["error"])

	status, resp := f.do(http.MethodPost, "/v1/reviews/"+rv["reviewId"].(string)+"/response", f.seller,
		map[string]string{"response": "thank you"})
	require.Equal(t, http.StatusOK, status, resp)

	status, list := f.do(http.MethodGet, "/v1/orders?as=buyer", f.buyer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list["orders"], 1)
}

func TestTransitionErrorsCarryCodes(t *testing.T) {
	f := newAPIFixture(t)
	orderID := f.placePaidOrder()

	status, body := f.do(http.MethodPost, "/v1/orders/"+orderID+"/status", f.buyer, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["error"])

	status, body = f.do(http.MethodPost, "/v1/orders/"+orderID+"/status", f.seller, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", body["error"])
	assert.Equal(t, "pending", field(t, body, "metadata", "current"))

	status, body = f.do(http.MethodPost, "/v1/orders/"+orderID+"/reviews", f.buyer, map[string]interface{}{"rating": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "ORDER_NOT_DELIVERED", body["error"])

	status, _ = f.do(http.MethodGet, "/v1/orders/not-a-uuid", f.buyer, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/v1/orders/"+orderID+"/status", f.seller, map[string]string{"bogus": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDisputeRefundOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	orderID := f.placePaidOrder()

	status, view := f.do(http.MethodPost, "/v1/orders/"+orderID+"/disputes", f.buyer, map[string]interface{}{
		"disputeType": "seller_not_shipping", "reason": "no shipment after a week",
	})
	require.Equal(t, http.StatusCreated, status, view)
	assert.Equal(t, "disputed", field(t, view, "escrow", "status"))
	disputeID := field(t, view, "dispute", "disputeId").(string)

	status, body := f.do(http.MethodPost, "/v1/orders/"+orderID+"/disputes", f.seller, map[string]interface{}{
		"disputeType": "other", "reason": "buyer keeps asking",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", body["error"])

	status, body = f.do(http.MethodPost, "/v1/orders/"+orderID+"/release", f.admin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DISPUTE_BLOCKING", body["error"])

	status, msg := f.do(http.MethodPost, "/v1/disputes/"+disputeID+"/messages", f.seller, map[string]string{"message": "shipping tomorrow"})
	require.Equal(t, http.StatusCreated, status, msg)

	status, body = f.do(http.MethodPost, "/v1/disputes/"+disputeID+"/resolve", f.buyer, map[string]string{
		"resolutionType": "refund_buyer", "resolution": "refund",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, view = f.do(http.MethodPost, "/v1/disputes/"+disputeID+"/resolve", f.admin, map[string]string{
		"resolutionType": "refund_buyer", "resolution": "seller never shipped",
	})
	require.Equal(t, http.StatusOK, status, view)
	assert.Equal(t, "refunded", field(t, view, "escrow", "status"))
	assert.Equal(t, "resolved", field(t, view, "dispute", "status"))

	status, msgs := f.do(http.MethodGet, "/v1/disputes/"+disputeID+"/messages", f.admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, msgs["messages"], 1)

	status, view = f.do(http.MethodPost, "/v1/disputes/"+disputeID+"/close", f.admin, nil)
	require.Equal(t, http.StatusOK, status, view)
	assert.Equal(t, "closed", field(t, view, "dispute", "status"))
}

func TestPaymentSignalMustVerify(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(http.MethodPost, "/v1/payments/capture", "", map[string]string{"signal": "forged"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", body["error"])

	forger, err := appAuth.NewService("token-secret", "other-secret", zerolog.Nop())
	require.NoError(t, err)
	sig, err := forger.SignPaymentSignal(appAuth.PaymentSignal{OrderID: uuid.New(), Amount: 1, Reference: "x"}, time.Minute)
	require.NoError(t, err)
	status, _ = f.do(http.MethodPost, "/v1/payments/capture", "", map[string]string{"signal": sig})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t)
	status, _ := f.do(http.MethodGet, "/v1/admin/incidents", f.buyer, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(http.MethodGet, "/v1/admin/incidents", f.admin, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["incidents"])

	status, _ = f.do(http.MethodGet, "/v1/admin/cluster", f.admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
