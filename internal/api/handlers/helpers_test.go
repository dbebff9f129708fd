package handlers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmagar/editcount/internal/database"
	"github.com/jmagar/editcount/internal/models"
	"github.com/stretchr/testify/require"
)

// setupTestDB initializes an in-memory database for testing
func setupTestDB(t *testing.T) *sql.DB {
	db, err := database.Initialize(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// staticScanner returns the same groups on every scan, optionally waiting on
// release first
type staticScanner struct {
	groups  []models.Group
	release chan struct{}
}

func (s *staticScanner) Scan(ctx context.Context) ([]models.Group, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.groups, nil
}

var testGroups = []models.Group{{Name: "2018", Albums: []models.Album{
	{Album: "X", Edited: 2, Deleted: 0, Total: 2},
	{Album: "Y", Edited: 1, Deleted: 1, Total: 4},
}}}
