package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate(t *testing.T) {
	conn, err := Open(Config{DataDir: t.TempDir(), DBName: "test"})
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, conn))
	require.NoError(t, Migrate(ctx, conn))

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*) FROM region_scores`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*) FROM reports`).Scan(&n))
	assert.Zero(t, n)
}
