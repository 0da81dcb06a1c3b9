package httpapi

import (
	"net/http"
	"strings"

	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/user"
)

const paymentSignalHeader = "X-Payment-Signal"

type captureRequest struct {
	Signal string `json:"signal"`
}

// capturePayment is the gateway webhook. The signed signal is the only
// credential; the capture runs as the system actor.
func (s *Server) capturePayment(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(paymentSignalHeader))
	if token == "" {
		var req captureRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			invalidParam(w, err.Error())
			return
		}
		token = req.Signal
	}
	signal, err := s.authSvc.VerifyPaymentSignal(token)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnauthenticated {
			respondError(w, http.StatusUnauthorized, string(apperr.CodeUnauthenticated), "invalid payment signal", nil)
			return
		}
		s.respondAppError(w, r, err)
		return
	}
	view, err := s.fulfillmentSvc.CapturePayment(r.Context(), user.System(), fulfillment.CaptureInput{
		OrderID:   signal.OrderID,
		Amount:    signal.Amount,
		Reference: signal.Reference,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
