package httpapi

import (
	"net/http"
	"strings"

	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/domain/order"
)

type advanceRequest struct {
	Status          order.Status `json:"status"`
	TrackingNumber  string       `json:"trackingNumber,omitempty"`
	Carrier         string       `json:"carrier,omitempty"`
	Note            string       `json:"note,omitempty"`
	ExpectedVersion int64        `json:"expectedVersion,omitempty"`
}

type trackingRequest struct {
	TrackingNumber  string `json:"trackingNumber"`
	Carrier         string `json:"carrier,omitempty"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

type cancelRequest struct {
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req fulfillment.CreateProductInput
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	p, err := s.fulfillmentSvc.CreateProduct(r.Context(), actor, req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req fulfillment.CreateOrderInput
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	view, err := s.fulfillmentSvc.CreateOrder(r.Context(), actor, req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	limit, offset := parseLimitOffset(r, 50, 200)
	in := fulfillment.ListOrdersInput{
		As:     strings.TrimSpace(r.URL.Query().Get("as")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st := order.Status(raw)
		in.Status = &st
	}
	orders, err := s.fulfillmentSvc.ListOrders(r.Context(), actor, in)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	view, err := s.fulfillmentSvc.GetOrder(r.Context(), actor, id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) advanceOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	view, err := s.fulfillmentSvc.AdvanceOrder(r.Context(), actor, fulfillment.AdvanceInput{
		OrderID:         id,
		Status:          req.Status,
		TrackingNumber:  req.TrackingNumber,
		Carrier:         req.Carrier,
		Note:            req.Note,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) recordTracking(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	var req trackingRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	o, err := s.fulfillmentSvc.RecordTracking(r.Context(), actor, fulfillment.TrackingInput{
		OrderID:         id,
		TrackingNumber:  req.TrackingNumber,
		Carrier:         req.Carrier,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	var req cancelRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	view, err := s.fulfillmentSvc.CancelOrder(r.Context(), actor, fulfillment.CancelInput{
		OrderID:         id,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	view, err := s.fulfillmentSvc.ConfirmReceipt(r.Context(), actor, id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) releaseEscrow(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	view, err := s.fulfillmentSvc.ReleaseEscrow(r.Context(), actor, id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
