package httpapi

import (
	"net/http"

	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
)

type createReviewRequest struct {
	Rating  int      `json:"rating"`
	Comment string   `json:"comment,omitempty"`
	Images  []string `json:"images,omitempty"`
}

type reviewResponseRequest struct {
	Response string `json:"response"`
}

type incidentView struct {
	*incident.Incident
	Verified bool `json:"verified"`
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		invalidParam(w, "invalid orderId")
		return
	}
	var req createReviewRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	rv, err := s.fulfillmentSvc.CreateReview(r.Context(), actor, fulfillment.CreateReviewInput{
		OrderID: orderID,
		Rating:  req.Rating,
		Comment: req.Comment,
		Images:  req.Images,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rv)
}

func (s *Server) respondToReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	id, err := parseUUIDParam(r, "reviewId")
	if err != nil {
		invalidParam(w, "invalid reviewId")
		return
	}
	var req reviewResponseRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	rv, err := s.fulfillmentSvc.RespondToReview(r.Context(), actor, id, req.Response)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rv)
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	limit, offset := parseLimitOffset(r, 50, 200)
	incidents, err := s.fulfillmentSvc.ListIncidents(r.Context(), actor, limit, offset)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	out := make([]incidentView, 0, len(incidents))
	for _, in := range incidents {
		ok, err := s.fulfillmentSvc.VerifyIncident(in)
		if err != nil {
			s.logger.Warn().Err(err).Str("incident_id", in.IncidentID.String()).Msg("incident signature check failed")
		}
		out = append(out, incidentView{Incident: in, Verified: ok})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"incidents": out})
}
