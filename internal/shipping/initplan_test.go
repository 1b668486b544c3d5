package shipping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInitializationExplicitModes(t *testing.T) {
	ctx := context.Background()
	paths := newFakePaths("/backups/seed.bak", "/backups/archive")

	tests := []struct {
		name     string
		req      InitializationRequest
		wantKind InitializationKind
		wantPath string
	}{
		{"generate new", InitializationRequest{GenerateNew: true}, InitGenerateNew, ""},
		{"reuse file", InitializationRequest{ReuseBackupFile: "/backups/seed.bak"}, InitReuseExisting, "/backups/seed.bak"},
		{"reuse folder", InitializationRequest{ReuseBackupDir: "/backups/archive"}, InitReuseFolder, "/backups/archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ResolveInitialization(ctx, paths, tt.req, false, false, false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, plan.Kind)
			assert.Equal(t, tt.wantPath, plan.BackupPath)
		})
	}
}

func TestResolveInitializationConflictingModes(t *testing.T) {
	req := InitializationRequest{GenerateNew: true, ReuseBackupFile: "/backups/seed.bak"}
	_, err := ResolveInitialization(context.Background(), newFakePaths(), req, false, false, false)
	require.Error(t, err)
	assert.Equal(t, ClassConfiguration, Classify(err))
}

func TestResolveInitializationUnreachableReusePath(t *testing.T) {
	req := InitializationRequest{ReuseBackupFile: "/backups/missing.bak"}
	_, err := ResolveInitialization(context.Background(), newFakePaths(), req, false, false, false)
	require.Error(t, err)
	assert.Equal(t, ClassPrecondition, Classify(err))
}

func TestResolveInitializationExistingSecondary(t *testing.T) {
	ctx := context.Background()
	paths := newFakePaths()

	// Restore-pending secondary needs no seeding.
	plan, err := ResolveInitialization(ctx, paths, InitializationRequest{}, true, true, false)
	require.NoError(t, err)
	assert.Equal(t, InitNone, plan.Kind)

	// An online secondary of the same name is a precondition failure, not
	// something seeding silently overwrites.
	_, err = ResolveInitialization(ctx, paths, InitializationRequest{}, true, false, false)
	require.Error(t, err)
	assert.Equal(t, ClassPrecondition, Classify(err))
}

func TestResolveInitializationMissingSecondary(t *testing.T) {
	ctx := context.Background()
	paths := newFakePaths()

	// Without force the decision is surfaced to the operator.
	plan, err := ResolveInitialization(ctx, paths, InitializationRequest{}, false, false, false)
	require.NoError(t, err)
	assert.Equal(t, InitPendingDecision, plan.Kind)

	// Force resolves the ambiguity to a fresh base copy.
	plan, err = ResolveInitialization(ctx, paths, InitializationRequest{}, false, false, true)
	require.NoError(t, err)
	assert.Equal(t, InitGenerateNew, plan.Kind)
}
