package httpapi

import (
	"errors"
	"net/http"

	"github.com/petmarket/escrow-hub/internal/infrastructure/raftledger"
)

type clusterJoinRequest struct {
	NodeID   string `json:"nodeId"`
	RaftAddr string `json:"raftAddr"`
}

type clusterRemoveRequest struct {
	NodeID string `json:"nodeId"`
}

func (s *Server) clusterStatus(w http.ResponseWriter, _ *http.Request) {
	if s.cluster == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "ledger is not replicated", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodeId":    s.cluster.ID(),
		"raftAddr":  s.cluster.RaftAddr(),
		"state":     s.cluster.State(),
		"leader":    s.cluster.LeaderAddr(),
		"leaderId":  s.cluster.LeaderNodeID(),
		"isLeader":  s.cluster.IsLeader(),
		"raftStats": s.cluster.Stats(),
	})
}

func (s *Server) clusterJoin(w http.ResponseWriter, r *http.Request) {
	if !s.requireLeader(w, r) {
		return
	}
	var req clusterJoinRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	if err := s.cluster.AddVoter(r.Context(), req.NodeID, req.RaftAddr); err != nil {
		s.membershipError(w, r, "JOIN_FAILED", err)
		return
	}
	s.logger.Info().Str("peer_id", req.NodeID).Str("peer_addr", req.RaftAddr).Msg("raft voter joined")
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

func (s *Server) clusterRemove(w http.ResponseWriter, r *http.Request) {
	if !s.requireLeader(w, r) {
		return
	}
	var req clusterRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		invalidParam(w, err.Error())
		return
	}
	if err := s.cluster.RemoveServer(r.Context(), req.NodeID); err != nil {
		s.membershipError(w, r, "REMOVE_FAILED", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

func (s *Server) requireLeader(w http.ResponseWriter, r *http.Request) bool {
	if s.cluster == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "ledger is not replicated", nil)
		return false
	}
	if !s.cluster.IsLeader() {
		s.respondAppError(w, r, raftledger.ErrNotLeader)
		return false
	}
	return true
}

func (s *Server) membershipError(w http.ResponseWriter, r *http.Request, code string, err error) {
	if errors.Is(err, raftledger.ErrNotLeader) {
		s.respondAppError(w, r, err)
		return
	}
	respondError(w, http.StatusBadRequest, code, err.Error(), nil)
}
