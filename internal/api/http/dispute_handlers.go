package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/user"
)

type openDisputeRequest struct {
	Type         dispute.Type `json:"disputeType"`
	Reason       string       `json:"reason"`
	Description  string       `json:"description,omitempty"`
	EvidenceURLs []string     `json:"evidenceUrls,omitempty"`
}

type resolveDisputeRequest struct {
	ResolutionType dispute.ResolutionType `json:"resolutionType"`
	Resolution     string                 `json:"resolution"`
	Amount         int64                  `json:"resolutionAmount,omitempty"`
}

type messageRequest struct {
	Message     string   `json:"message"`
	Attachments []string `json:"attachments,omitempty"`
}

func (s *Server) openDispute(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	var req openDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	view, err := s.fulfillmentSvc.OpenDispute(r.Context(), actor, fulfillment.OpenDisputeInput{
		OrderID:      orderID,
		Type:         req.Type,
		Reason:       req.Reason,
		Description:  req.Description,
		EvidenceURLs: req.EvidenceURLs,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) getDispute(w http.ResponseWriter, r *http.Request) {
	s.disputeAction(w, r, s.fulfillmentSvc.GetDispute)
}

func (s *Server) beginDisputeReview(w http.ResponseWriter, r *http.Request) {
	s.disputeAction(w, r, s.fulfillmentSvc.BeginReview)
}

func (s *Server) cancelDispute(w http.ResponseWriter, r *http.Request) {
	s.disputeAction(w, r, s.fulfillmentSvc.CancelDispute)
}

func (s *Server) closeDispute(w http.ResponseWriter, r *http.Request) {
	s.disputeAction(w, r, s.fulfillmentSvc.CloseDispute)
}

type disputeFunc func(ctx context.Context, actor user.Actor, disputeID uuid.UUID) (*fulfillment.DisputeView, error)

// disputeAction runs an operation that only needs the dispute id.
func (s *Server) disputeAction(w http.ResponseWriter, r *http.Request, fn disputeFunc) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		invalidParam(w, "invalid disputeId")
		return
	}
	view, err := fn(r.Context(), actor, id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) resolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		invalidParam(w, "invalid disputeId")
		return
	}
	var req resolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	view, err := s.fulfillmentSvc.ResolveDispute(r.Context(), actor, fulfillment.ResolveInput{
		DisputeID:      id,
		ResolutionType: req.ResolutionType,
		Resolution:     req.Resolution,
		Amount:         req.Amount,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) listDisputeMessages(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		invalidParam(w, "invalid disputeId")
		return
	}
	msgs, err := s.fulfillmentSvc.ListMessages(r.Context(), actor, id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) postDisputeMessage(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		invalidParam(w, "invalid disputeId")
		return
	}
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	msg, err := s.fulfillmentSvc.PostMessage(r.Context(), actor, fulfillment.MessageInput{
		DisputeID:   id,
		Body:        req.Message,
		Attachments: req.Attachments,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
