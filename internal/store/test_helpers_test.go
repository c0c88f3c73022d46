package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/testutil"
)

// createTestStore creates a new store in a temp directory with the shop schema applied.
func createTestStore(t *testing.T) (*Store, *schema.Registry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := testutil.Shop(t)
	require.NoError(t, s.ApplySchema(context.Background(), reg))
	return s, reg
}

// insert writes rows inside one committed transaction.
func insert(t *testing.T, s *Store, reg *schema.Registry, table string, rows ...map[string]ir.Value) {
	t.Helper()
	tbl, ok := reg.Table(table)
	require.True(t, ok, "unknown table %s", table)
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		for _, row := range rows {
			if err := tx.Insert(context.Background(), tbl, row); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}
