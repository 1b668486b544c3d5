package shipping

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/metrics"
)

// RecoveryState tracks one database through a recovery pass. Promoted and
// Failed are terminal.
type RecoveryState string

const (
	RecoveryReplicaPending   RecoveryState = "replica-pending"
	RecoveryTransportRunning RecoveryState = "transport-running"
	RecoveryTransportIdle    RecoveryState = "transport-idle"
	RecoveryApplyRunning     RecoveryState = "apply-running"
	RecoveryApplyIdle        RecoveryState = "apply-idle"
	RecoveryPromoted         RecoveryState = "promoted"
	RecoveryFailed           RecoveryState = "failed"
)

// RecoveryOptions carries the per-run settings of a Recover batch.
type RecoveryOptions struct {
	Databases []string

	// DeferFinalPromotion drains transport and apply but leaves the
	// database replicated; promotion is issued by a later run.
	DeferFinalPromotion bool

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// RecoveryOrchestrator drains an already-running topology to quiescence on
// one secondary role and optionally promotes each database out of
// replication. Databases are processed independently; one database's
// failure at any stage does not block the rest.
type RecoveryOrchestrator struct {
	role    Role
	opts    RecoveryOptions
	logger  *zap.Logger
	metrics *metrics.Store
	jobs    *JobOrchestrator
}

func NewRecoveryOrchestrator(role Role, opts RecoveryOptions, logger *zap.Logger, metricsStore *metrics.Store) *RecoveryOrchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Hour
	}
	return &RecoveryOrchestrator{
		role:    role,
		opts:    opts,
		logger:  logger.Named("recovery").With(zap.String("role", role.Name)),
		metrics: metricsStore,
		jobs:    NewJobOrchestrator(role.Name, role.Engine, logger, metricsStore),
	}
}

// Recover runs the drain-and-promote pipeline for every requested database
// and returns one outcome record per database.
func (r *RecoveryOrchestrator) Recover(ctx context.Context) []OutcomeRecord {
	startTime := time.Now()
	r.logger.Info("Starting recovery run",
		zap.Strings("databases", r.opts.Databases),
		zap.Bool("defer_final_promotion", r.opts.DeferFinalPromotion),
		zap.Duration("poll_interval", r.opts.PollInterval),
		zap.Duration("poll_timeout", r.opts.PollTimeout),
	)
	r.metrics.OrchestrationRunning.Set(1)
	defer r.metrics.OrchestrationRunning.Set(0)
	defer func() {
		r.metrics.RunDuration.WithLabelValues("recover").Observe(time.Since(startTime).Seconds())
	}()

	reporter := NewReporter()
	for _, database := range r.opts.Databases {
		rec := r.recoverDatabase(ctx, database)
		r.metrics.UnitDuration.WithLabelValues("recover", database).Observe(rec.Duration.Seconds())
		r.metrics.UnitsTotal.WithLabelValues("recover", string(rec.Result)).Inc()
		reporter.Append(rec)
	}

	records := reporter.Records()
	r.logger.Info("Recovery run finished",
		zap.Duration("total_duration", time.Since(startTime)),
		zap.Int("units", len(records)),
		zap.Int("failed_units", reporter.FailedCount()),
	)
	return records
}

func (r *RecoveryOrchestrator) recoverDatabase(ctx context.Context, database string) OutcomeRecord {
	start := time.Now()
	state := RecoveryReplicaPending
	log := r.logger.With(zap.String("database", database))

	rec := OutcomeRecord{
		SecondaryRole:     r.role.Name,
		SecondaryDatabase: database,
	}
	fail := func(comment string, err error) OutcomeRecord {
		state = RecoveryFailed
		rec.Result = ResultFailed
		rec.Comment = comment
		rec.Err = err
		rec.Duration = time.Since(start)
		log.Error("Recovery failed for database",
			zap.String("step", comment),
			zap.String("class", string(Classify(err))),
			zap.Error(err))
		return rec
	}
	transition := func(next RecoveryState) {
		log.Info("Recovery state transition",
			zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}

	// The catalog entry is read once and never written back.
	entry, err := r.role.Catalog.ShippingEntry(ctx, database)
	if err != nil {
		return fail("reading replication catalog", wrapError(ClassEngine, "read-catalog", err))
	}
	if entry == nil {
		return fail("database is not replicated",
			newError(ClassNotReplicated, "read-catalog",
				"no replication catalog entry for database %q on role %q", database, r.role.Name))
	}
	rec.PrimaryRole = entry.PrimaryRole
	rec.PrimaryDatabase = entry.PrimaryDatabase

	dbState, err := r.role.Server.DatabaseState(ctx, database)
	if err != nil {
		return fail("reading database state", wrapError(ClassEngine, "read-database-state", err))
	}
	if dbState != StateRestoring && dbState != StateStandby {
		return fail("database is not in a recoverable replication state",
			newError(ClassInvalidState, "read-database-state",
				"database %q is %s; recovery requires a restoring or standby secondary", database, dbState))
	}

	// Drain in-flight transport work, then stop the transport job.
	transition(RecoveryTransportRunning)
	if err := r.jobs.Drain(ctx, entry.TransportJobName, r.opts.PollInterval, r.opts.PollTimeout); err != nil {
		return fail("draining transport job", err)
	}
	transition(RecoveryTransportIdle)
	if err := r.jobs.SetEnabled(ctx, entry.TransportJobName, false); err != nil {
		return fail("disabling transport job", err)
	}

	// Apply everything that was transported, then stop the apply job.
	transition(RecoveryApplyRunning)
	if err := r.jobs.Drain(ctx, entry.ApplyJobName, r.opts.PollInterval, r.opts.PollTimeout); err != nil {
		return fail("draining apply job", err)
	}
	transition(RecoveryApplyIdle)
	if err := r.jobs.SetEnabled(ctx, entry.ApplyJobName, false); err != nil {
		return fail("disabling apply job", err)
	}

	if r.opts.DeferFinalPromotion {
		rec.Result = ResultSuccess
		rec.Comment = "drained to quiescence; final promotion deferred"
		rec.Duration = time.Since(start)
		log.Info("Recovery drained, promotion deferred", zap.Duration("duration", rec.Duration))
		return rec
	}

	// One-way transition: after this the database is out of replication and
	// this orchestrator cannot bring it back.
	if err := r.role.Server.Promote(ctx, database); err != nil {
		return fail("promoting secondary database", wrapError(ClassEngine, "promote", err))
	}
	transition(RecoveryPromoted)
	r.metrics.PromotionsTotal.Inc()

	rec.Result = ResultSuccess
	rec.Comment = "secondary promoted to independent service"
	rec.Duration = time.Since(start)
	log.Info("Database promoted", zap.Duration("duration", rec.Duration))
	return rec
}
