package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAuth "github.com/petmarket/escrow-hub/internal/application/auth"
	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/infrastructure/raftledger"
	"github.com/petmarket/escrow-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	fulfillmentSvc *fulfillment.Service
	authSvc        *appAuth.Service
	sseHub         *sse.Hub
	cluster        *raftledger.Node
	logger         zerolog.Logger
}

func NewServer(fulfillmentSvc *fulfillment.Service, authSvc *appAuth.Service, sseHub *sse.Hub, logger zerolog.Logger) *Server {
	return &Server{
		fulfillmentSvc: fulfillmentSvc,
		authSvc:        authSvc,
		sseHub:         sseHub,
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

// SetCluster exposes raft membership endpoints for the replicated driver.
func (s *Server) SetCluster(node *raftledger.Node) {
	s.cluster = node
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/payments/capture", s.capturePayment)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/events", s.sseEndpoint)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))

				r.Post("/products", s.createProduct)

				r.Route("/orders", func(r chi.Router) {
					r.Post("/", s.createOrder)
					r.Get("/", s.listOrders)
					r.Get("/{orderId}", s.getOrder)
					r.Post("/{orderId}/status", s.advanceOrder)
					r.Post("/{orderId}/tracking", s.recordTracking)
					r.Post("/{orderId}/cancel", s.cancelOrder)
					r.Post("/{orderId}/confirm-receipt", s.confirmReceipt)
					r.Post("/{orderId}/release", s.releaseEscrow)
					r.Post("/{orderId}/disputes", s.openDispute)
					r.Post("/{orderId}/reviews", s.createReview)
				})

				r.Route("/disputes", func(r chi.Router) {
					r.Get("/{disputeId}", s.getDispute)
					r.Post("/{disputeId}/review", s.beginDisputeReview)
					r.Post("/{disputeId}/resolve", s.resolveDispute)
					r.Post("/{disputeId}/cancel", s.cancelDispute)
					r.Post("/{disputeId}/close", s.closeDispute)
					r.Get("/{disputeId}/messages", s.listDisputeMessages)
					r.Post("/{disputeId}/messages", s.postDisputeMessage)
				})

				r.Post("/reviews/{reviewId}/response", s.respondToReview)

				r.Route("/admin", func(r chi.Router) {
					r.Use(s.requireAdmin)
					r.Get("/incidents", s.listIncidents)
					r.Get("/cluster", s.clusterStatus)
					r.Post("/cluster/join", s.clusterJoin)
					r.Post("/cluster/remove", s.clusterRemove)
				})
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"ok": true}
	if s.cluster != nil {
		out["nodeId"] = s.cluster.ID()
		out["state"] = s.cluster.State()
		out["leaderId"] = s.cluster.LeaderNodeID()
	}
	respondJSON(w, http.StatusOK, out)
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string, metadata map[string]string) {
	out := map[string]interface{}{
		"error":   code,
		"message": message,
	}
	if len(metadata) > 0 {
		out["metadata"] = metadata
	}
	respondJSON(w, status, out)
}

// respondAppError maps coordinator errors to their HTTP shape. Errors
// without a code are logged and hidden from the client.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, raftledger.ErrNotLeader) {
		meta := map[string]string{}
		if s.cluster != nil {
			meta["leader"] = s.cluster.LeaderAddr()
			meta["leaderId"] = s.cluster.LeaderNodeID()
		}
		respondError(w, http.StatusConflict, "NOT_LEADER", "submit to leader", meta)
		return
	}
	if e, ok := apperr.As(err); ok {
		respondError(w, apperr.HTTPStatus(e.Code), string(e.Code), e.Message, e.Metadata)
		return
	}
	s.logger.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
	respondError(w, http.StatusInternalServerError, string(apperr.CodeInternal), "internal error", nil)
}

func invalidParam(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, string(apperr.CodeInvalidInput), message, nil)
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptionalBody accepts an empty body as the zero request.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if err := decodeBody(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
