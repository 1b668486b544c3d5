package platform

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReachable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mnt/share/backups", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/mnt/share/seed.bak", []byte("x"), 0o644))
	paths := NewPaths(fs, "db-primary", zap.NewNop())
	ctx := context.Background()

	ok, err := paths.Reachable(ctx, "/mnt/share/backups")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = paths.Reachable(ctx, "/mnt/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// Individual backup files are probed the same way as directories.
	ok, err = paths.Reachable(ctx, "/mnt/share/seed.bak")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := NewPaths(fs, "db-dr", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, paths.EnsureDirectory(ctx, "/mnt/dr/incoming/sales"))
	ok, err := paths.Reachable(ctx, "/mnt/dr/incoming/sales")
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent.
	require.NoError(t, paths.EnsureDirectory(ctx, "/mnt/dr/incoming/sales"))
}

func TestPathsHonorCancelledContext(t *testing.T) {
	paths := NewPaths(afero.NewMemMapFs(), "db-dr", zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := paths.Reachable(ctx, "/anything")
	assert.Error(t, err)
	assert.Error(t, paths.EnsureDirectory(ctx, "/anything"))
}
