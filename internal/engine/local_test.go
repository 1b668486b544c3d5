package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/shipping"
)

func newMemoryEngine(t *testing.T, runner JobRunner) *LocalEngine {
	t.Helper()
	e, err := NewLocalEngine(nil, runner, zap.NewNop())
	require.NoError(t, err)
	return e
}

func registerJob(t *testing.T, e *LocalEngine, name string) {
	t.Helper()
	require.NoError(t, e.CreateOrReplaceJob(context.Background(), shipping.JobDefinition{
		Name:    name,
		Command: "transport --from /a --to /b",
		Enabled: true,
	}))
}

func TestLocalEngineRegistration(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEngine(t, nil)

	exists, err := e.JobExists(ctx, "LSCopy_db-primary_sales")
	require.NoError(t, err)
	assert.False(t, exists)

	registerJob(t, e, "LSCopy_db-primary_sales")
	require.NoError(t, e.CreateOrReplaceSchedule(ctx, "LSCopy_db-primary_sales", shipping.ScheduleSpec{Name: "LSCopySchedule_db-primary_sales"}))

	exists, err = e.JobExists(ctx, "LSCopy_db-primary_sales")
	require.NoError(t, err)
	assert.True(t, exists)

	// Replacing is not an error; it swaps the definition in place.
	registerJob(t, e, "LSCopy_db-primary_sales")

	require.NoError(t, e.SetEnabled(ctx, "LSCopy_db-primary_sales", false))
	assert.Error(t, e.SetEnabled(ctx, "LSRestore_db-primary_sales", false))
	assert.Error(t, e.CreateOrReplaceSchedule(ctx, "LSRestore_db-primary_sales", shipping.ScheduleSpec{}))
}

func TestLocalEngineRunToSuccess(t *testing.T) {
	ctx := context.Background()
	ran := make(chan string, 1)
	e := newMemoryEngine(t, func(ctx context.Context, command string) error {
		ran <- command
		return nil
	})
	registerJob(t, e, "LSCopy_db-primary_sales")

	h, err := e.Start(ctx, "LSCopy_db-primary_sales")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, perr := e.PollStatus(ctx, h)
		return perr == nil && state == shipping.RunStateIdle
	}, time.Second, time.Millisecond)

	assert.Equal(t, "transport --from /a --to /b", <-ran)
	outcome, err := e.LastOutcome(ctx, "LSCopy_db-primary_sales")
	require.NoError(t, err)
	assert.Equal(t, shipping.OutcomeSucceeded, outcome)
}

func TestLocalEngineRunToFailure(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEngine(t, func(ctx context.Context, command string) error {
		return errors.New("copy failed")
	})
	registerJob(t, e, "LSCopy_db-primary_sales")

	h, err := e.Start(ctx, "LSCopy_db-primary_sales")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, perr := e.PollStatus(ctx, h)
		return perr == nil && state == shipping.RunStateIdle
	}, time.Second, time.Millisecond)

	outcome, err := e.LastOutcome(ctx, "LSCopy_db-primary_sales")
	require.NoError(t, err)
	assert.Equal(t, shipping.OutcomeFailed, outcome)
}

func TestLocalEngineUnknownJobOperations(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEngine(t, nil)

	_, err := e.Start(ctx, "missing")
	assert.Error(t, err)
	_, err = e.PollStatus(ctx, shipping.RunHandle{JobName: "missing"})
	assert.Error(t, err)
	_, err = e.LastOutcome(ctx, "missing")
	assert.Error(t, err)
}

func TestLocalEngineNilRunnerSucceedsImmediately(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEngine(t, nil)
	registerJob(t, e, "LSRestore_db-primary_sales")

	h, err := e.Start(ctx, "LSRestore_db-primary_sales")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		state, perr := e.PollStatus(ctx, h)
		return perr == nil && state == shipping.RunStateIdle
	}, time.Second, time.Millisecond)

	outcome, err := e.LastOutcome(ctx, "LSRestore_db-primary_sales")
	require.NoError(t, err)
	assert.Equal(t, shipping.OutcomeSucceeded, outcome)
}
