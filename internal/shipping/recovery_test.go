package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/metrics"
)

const (
	transportJob = "LSCopy_db-primary_sales"
	applyJob     = "LSRestore_db-primary_sales"
)

// newRecoveryFixture builds a secondary role whose "sales" database is
// restoring with healthy transport and apply jobs on record.
func newRecoveryFixture() *testRole {
	sec := newTestRole("db-dr")
	sec.instance.addDatabase("sales", StateRestoring, "FULL")
	sec.engine.addJob(transportJob, OutcomeSucceeded)
	sec.engine.addJob(applyJob, OutcomeSucceeded)
	sec.catalog.entries["sales"] = &RecoveryCatalogEntry{
		PrimaryRole:       "db-primary",
		PrimaryDatabase:   "sales",
		SecondaryDatabase: "sales",
		SourcePath:        "/mnt/share/backups/sales",
		DestinationPath:   "/mnt/dr/incoming/sales",
		TransportJobName:  transportJob,
		ApplyJobName:      applyJob,
	}
	return sec
}

func runRecovery(sec *testRole, opts RecoveryOptions) []OutcomeRecord {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = time.Second
	}
	orch := NewRecoveryOrchestrator(sec.role, opts, zap.NewNop(), metrics.NewMetricsStore())
	return orch.Recover(context.Background())
}

func TestRecoverPromotesDatabase(t *testing.T) {
	sec := newRecoveryFixture()
	records := runRecovery(sec, RecoveryOptions{Databases: []string{"sales"}})

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, ResultSuccess, rec.Result)
	assert.Equal(t, "secondary promoted to independent service", rec.Comment)
	assert.Equal(t, "db-primary", rec.PrimaryRole)
	assert.Equal(t, "sales", rec.PrimaryDatabase)

	// Transport drained before apply, both disabled, then promoted.
	assert.Equal(t, []string{"sales"}, sec.instance.promoted)
	assert.False(t, sec.engine.jobEnabled(transportJob))
	assert.False(t, sec.engine.jobEnabled(applyJob))

	calls := sec.engine.callLog()
	assert.Less(t, indexOf(calls, "start:"+transportJob), indexOf(calls, "start:"+applyJob))
}

func TestRecoverNotReplicated(t *testing.T) {
	sec := newRecoveryFixture()
	records := runRecovery(sec, RecoveryOptions{Databases: []string{"billing"}})

	require.Len(t, records, 1)
	assert.Equal(t, ResultFailed, records[0].Result)
	assert.Equal(t, ClassNotReplicated, records[0].Class())

	// The catalog miss is detected before any engine operation.
	assert.Empty(t, sec.engine.callLog())
	assert.Empty(t, sec.instance.promoted)
}

func TestRecoverRejectsOnlineDatabase(t *testing.T) {
	sec := newRecoveryFixture()
	sec.instance.addDatabase("sales", StateOnline, "FULL")

	records := runRecovery(sec, RecoveryOptions{Databases: []string{"sales"}})
	require.Len(t, records, 1)
	assert.Equal(t, ResultFailed, records[0].Result)
	assert.Equal(t, ClassInvalidState, records[0].Class())
	assert.Empty(t, sec.engine.callLog())
}

func TestRecoverStandbySecondaryIsRecoverable(t *testing.T) {
	sec := newRecoveryFixture()
	sec.instance.addDatabase("sales", StateStandby, "FULL")

	records := runRecovery(sec, RecoveryOptions{Databases: []string{"sales"}})
	require.Len(t, records, 1)
	assert.Equal(t, ResultSuccess, records[0].Result)
}

func TestRecoverTransportFailureStopsBeforeApply(t *testing.T) {
	sec := newRecoveryFixture()
	sec.engine.addJob(transportJob, OutcomeFailed)

	records := runRecovery(sec, RecoveryOptions{Databases: []string{"sales"}})
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, ResultFailed, rec.Result)
	assert.Equal(t, "draining transport job", rec.Comment)

	// The apply job was never started and nothing was promoted.
	assert.NotContains(t, sec.engine.callLog(), "start:"+applyJob)
	assert.Empty(t, sec.instance.promoted)
	// The database stays replicated for a retry after the transport job is
	// fixed.
	state, err := sec.instance.DatabaseState(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, StateRestoring, state)
}

func TestRecoverDeferFinalPromotion(t *testing.T) {
	sec := newRecoveryFixture()
	records := runRecovery(sec, RecoveryOptions{
		Databases:           []string{"sales"},
		DeferFinalPromotion: true,
	})

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, ResultSuccess, rec.Result)
	assert.Equal(t, "drained to quiescence; final promotion deferred", rec.Comment)
	assert.Empty(t, sec.instance.promoted)
	assert.False(t, sec.engine.jobEnabled(transportJob))
	assert.False(t, sec.engine.jobEnabled(applyJob))
}

func TestRecoverDrainTimeout(t *testing.T) {
	sec := newRecoveryFixture()
	states := make([]RunState, 1000)
	for i := range states {
		states[i] = RunStateRunning
	}
	sec.engine.addJob(transportJob, OutcomeSucceeded, states...)

	records := runRecovery(sec, RecoveryOptions{
		Databases:    []string{"sales"},
		PollInterval: time.Millisecond,
		PollTimeout:  20 * time.Millisecond,
	})
	require.Len(t, records, 1)
	assert.Equal(t, ResultFailed, records[0].Result)
	assert.Equal(t, ClassTimeout, records[0].Class())
	assert.Empty(t, sec.instance.promoted)
}

func TestRecoverPerDatabaseIsolation(t *testing.T) {
	sec := newRecoveryFixture()
	records := runRecovery(sec, RecoveryOptions{Databases: []string{"billing", "sales"}})

	require.Len(t, records, 2)
	byDB := make(map[string]OutcomeRecord, 2)
	for _, rec := range records {
		byDB[rec.SecondaryDatabase] = rec
	}
	assert.Equal(t, ResultFailed, byDB["billing"].Result)
	assert.Equal(t, ClassNotReplicated, byDB["billing"].Class())
	assert.Equal(t, ResultSuccess, byDB["sales"].Result)
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}
