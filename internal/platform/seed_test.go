package platform

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSeeder(fs afero.Fs) *SQLSeeder {
	return &SQLSeeder{fs: fs, backupDir: "/var/backups", logger: zap.NewNop()}
}

func TestResolveArtifactFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mnt/dr/seed.bak", []byte("x"), 0o644))

	got, err := newTestSeeder(fs).resolveArtifact("/mnt/dr/seed.bak")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/dr/seed.bak", got)
}

func TestResolveArtifactFolderPicksNewest(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Timestamped names sort chronologically.
	require.NoError(t, afero.WriteFile(fs, "/mnt/dr/archive/sales_seed_20250101000000.bak", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mnt/dr/archive/sales_seed_20250301000000.bak", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mnt/dr/archive/sales_seed_20250201000000.bak", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mnt/dr/archive/notes.txt", []byte("x"), 0o644))

	got, err := newTestSeeder(fs).resolveArtifact("/mnt/dr/archive")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/dr/archive/sales_seed_20250301000000.bak", got)
}

func TestResolveArtifactFolderWithoutBackups(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mnt/dr/archive", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/mnt/dr/archive/notes.txt", []byte("x"), 0o644))

	_, err := newTestSeeder(fs).resolveArtifact("/mnt/dr/archive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .bak files")
}

func TestResolveArtifactMissing(t *testing.T) {
	_, err := newTestSeeder(afero.NewMemMapFs()).resolveArtifact("/mnt/dr/missing.bak")
	assert.Error(t, err)
}
