//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/petmarket/escrow-hub/internal/ledger"
	"github.com/petmarket/escrow-hub/internal/ledger/ledgertest"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithContainer(m))
}

func runWithContainer(m *testing.M) int {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("escrow"),
		tcpostgres.WithUsername("escrow"),
		tcpostgres.WithPassword("escrow"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		return 1
	}
	defer func() { _ = testcontainers.TerminateContainer(container) }()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve connection string: %v\n", err)
		return 1
	}
	testPool, err = NewPool(ctx, dsn, PoolOptions{MaxConns: 16})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	// second run must be a no-op
	if err := RunMigrations(ctx, testPool, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "re-migrate: %v\n", err)
		return 1
	}
	return m.Run()
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE incidents, change_events, reviews, dispute_messages, disputes, escrow_accounts, orders, products
	`)
	require.NoError(t, err)
}

func TestLedgerStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		truncate(t)
		return NewLedgerStore(testPool)
	})
}
