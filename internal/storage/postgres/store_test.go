package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/reelnotes/reelnotes-backend/internal/storage"
	"github.com/reelnotes/reelnotes-backend/internal/storage/storetest"
)

// Runs only against a real database: TEST_DB_DSN=postgres://... go test ./...
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, New(pool, "migrate").Migrate(ctx))

	storetest.Run(t, func(t *testing.T) storage.Store {
		// a fresh namespace per subtest keeps runs independent
		return New(pool, fmt.Sprintf("test-%s", uuid.NewString()))
	})
}
