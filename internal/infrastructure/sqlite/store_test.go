package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/ledger"
	"github.com/petmarket/escrow-hub/internal/ledger/ledgertest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return openTemp(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestReopenKeepsStateAndSkipsAppliedMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	o, a := ledgertest.Seed(t, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, o.FinalPrice, got.FinalPrice)

	acc, err := s.GetEscrowByOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, a.AccountID, acc.AccountID)
	assert.Equal(t, escrow.StatusNone, acc.Status)

	var applied int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestUpSectionSplitsMarkers(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "CREATE TABLE a (x INT);", strings.TrimSpace(upSection(content)))
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}
