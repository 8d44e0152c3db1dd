package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fiche-cuisine/internal/database"
	"github.com/iliyamo/fiche-cuisine/internal/validator"
)

// createTestDB opens a fresh SQLite database with the schema applied.
func createTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(context.Background(), db))
	return db
}

// createTestCandidate returns a valid candidate with no items.
func createTestCandidate(name string, pax int) validator.Candidate {
	return validator.Candidate{
		ClientName:   name,
		Pax:          pax,
		ServiceDate:  "2025-10-15",
		ArrivalTime:  "19:30",
		DrinkFormula: "Sans alcool",
	}
}

func ptr[T any](v T) *T { return &v }
