package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/petmarket/escrow-hub/internal/application/auth"
	"github.com/petmarket/escrow-hub/internal/config"
	"github.com/petmarket/escrow-hub/internal/domain/user"
)

// joinCluster asks an existing member to add this node as a voter. Members
// share AUTH_TOKEN_SECRET, so the node mints its own short-lived admin token.
func joinCluster(ctx context.Context, cfg *config.Config, authSvc *auth.Service, logger zerolog.Logger) error {
	endpoint := strings.TrimRight(cfg.Raft.JoinURL, "/") + "/v1/admin/cluster/join"
	body, err := json.Marshal(map[string]string{
		"nodeId":   cfg.Raft.NodeID,
		"raftAddr": cfg.Raft.Addr,
	})
	if err != nil {
		return err
	}
	attempts := cfg.Raft.JoinAttempts
	if attempts <= 0 {
		attempts = 1
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Raft.JoinRetryDelay):
			}
		}
		token, err := authSvc.IssueToken(user.SystemID, user.RoleAdmin, time.Minute)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Int("attempt", i+1).Msg("cluster join failed")
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info().Str("endpoint", endpoint).Msg("joined raft cluster")
			return nil
		}
		lastErr = fmt.Errorf("join returned status %d", resp.StatusCode)
		logger.Warn().Int("status", resp.StatusCode).Int("attempt", i+1).Msg("cluster join rejected")
	}
	if lastErr == nil {
		lastErr = errors.New("join failed")
	}
	return lastErr
}
