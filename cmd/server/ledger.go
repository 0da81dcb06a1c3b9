package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petmarket/escrow-hub/internal/application/auth"
	"github.com/petmarket/escrow-hub/internal/config"
	"github.com/petmarket/escrow-hub/internal/infrastructure/postgres"
	"github.com/petmarket/escrow-hub/internal/infrastructure/raftledger"
	"github.com/petmarket/escrow-hub/internal/infrastructure/sqlite"
	"github.com/petmarket/escrow-hub/internal/ledger"
	"github.com/petmarket/escrow-hub/internal/ledger/memory"
)

// backend is an opened ledger plus whatever must be released on shutdown.
type backend struct {
	store ledger.Store
	node  *raftledger.Node
	close func()
}

// leading reports whether this process should run the background loops.
// Only the raft leader can commit, so followers stay idle.
func (b *backend) leading() bool {
	return b.node == nil || b.node.IsLeader()
}

func openLedger(ctx context.Context, cfg *config.Config, authSvc *auth.Service, logger zerolog.Logger) (*backend, error) {
	switch cfg.LedgerDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        20,
			MaxConnIdleTime: 5 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return &backend{store: postgres.NewLedgerStore(pool), close: pool.Close}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &backend{store: store, close: func() { _ = store.Close() }}, nil

	case config.DriverRaft:
		node, err := raftledger.NewNode(raftledger.Config{
			NodeID:    cfg.Raft.NodeID,
			RaftAddr:  cfg.Raft.Addr,
			DataDir:   cfg.Raft.DataDir,
			Bootstrap: cfg.Raft.Bootstrap,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("raft: %w", err)
		}
		if cfg.Raft.JoinURL != "" && !cfg.Raft.Bootstrap {
			if err := joinCluster(ctx, cfg, authSvc, logger); err != nil {
				_ = node.Shutdown()
				return nil, fmt.Errorf("join cluster: %w", err)
			}
		}
		waitCtx, cancel := context.WithTimeout(ctx, cfg.Raft.StartupWait)
		if leader, err := node.WaitForLeader(waitCtx, 150*time.Millisecond); err != nil {
			logger.Warn().Err(err).Msg("no raft leader yet")
		} else {
			logger.Info().Str("leader", leader).Msg("raft leader elected")
		}
		cancel()
		return &backend{
			store: raftledger.NewStore(node),
			node:  node,
			close: func() { _ = node.Shutdown() },
		}, nil

	default:
		logger.Warn().Msg("memory ledger: state is lost on restart")
		return &backend{store: memory.NewStore(), close: func() {}}, nil
	}
}
