package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listkeeper/internal/repository/sqlite"
)

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "lists.db")
	ctx := context.Background()

	first, err := sqlite.Lock(ctx, path, 0)
	require.NoError(t, err)

	_, err = sqlite.Lock(ctx, path, 0)
	assert.ErrorIs(t, err, sqlite.ErrLocked)

	_, err = sqlite.Lock(ctx, path, 200*time.Millisecond)
	assert.ErrorIs(t, err, sqlite.ErrLocked)

	require.NoError(t, first.Unlock())

	second, err := sqlite.Lock(ctx, path, time.Second)
	require.NoError(t, err)
	assert.NoError(t, second.Unlock())
}
