package shipping

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/metrics"
)

// JobOrchestrator wraps the JobEngine of one role with the thin idempotent
// operations the configurator and recovery orchestrator compose. It adds
// logging, metrics, conflict detection and the poll-to-idle wait loop; it
// adds no engine-specific knowledge.
type JobOrchestrator struct {
	role    string
	engine  JobEngine
	logger  *zap.Logger
	metrics *metrics.Store
}

func NewJobOrchestrator(role string, engine JobEngine, logger *zap.Logger, metricsStore *metrics.Store) *JobOrchestrator {
	return &JobOrchestrator{
		role:    role,
		engine:  engine,
		logger:  logger.Named("job-orchestrator").With(zap.String("role", role)),
		metrics: metricsStore,
	}
}

// Register creates or replaces a job together with its schedule and applies
// the configured enabled state. Without force, an already-existing job of
// the same name is a conflict; with force, same-named definitions are
// overwritten rather than duplicated, which makes re-applying a topology
// idempotent.
func (o *JobOrchestrator) Register(ctx context.Context, kind string, def JobDefinition, spec ScheduleSpec, force bool) error {
	log := o.logger.With(zap.String("job", def.Name), zap.String("kind", kind))

	exists, err := o.engine.JobExists(ctx, def.Name)
	if err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("job-exists", o.role).Inc()
		return wrapError(ClassEngine, "check-job-exists", err)
	}
	if exists && !force {
		return newError(ClassConflict, "register-job",
			"job %q already exists on role %q; re-run with force mode to overwrite", def.Name, o.role)
	}
	if exists {
		log.Info("Overwriting existing job definition (force mode)")
	}

	if err := o.engine.CreateOrReplaceJob(ctx, def); err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("create-job", o.role).Inc()
		return wrapError(ClassEngine, "register-job", err)
	}
	if err := o.engine.CreateOrReplaceSchedule(ctx, def.Name, spec); err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("create-schedule", o.role).Inc()
		return wrapError(ClassEngine, "register-schedule", err)
	}
	if err := o.engine.SetEnabled(ctx, def.Name, def.Enabled); err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("set-enabled", o.role).Inc()
		return wrapError(ClassEngine, "set-job-enabled", err)
	}

	o.metrics.JobRegistrationsTotal.WithLabelValues(o.role, kind).Inc()
	log.Info("Job registered", zap.Bool("enabled", def.Enabled), zap.String("schedule", spec.Name))
	return nil
}

// SetEnabled flips the enabled state of a job.
func (o *JobOrchestrator) SetEnabled(ctx context.Context, jobName string, enabled bool) error {
	if err := o.engine.SetEnabled(ctx, jobName, enabled); err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("set-enabled", o.role).Inc()
		return wrapError(ClassEngine, "set-job-enabled", err)
	}
	o.logger.Info("Job enabled state changed", zap.String("job", jobName), zap.Bool("enabled", enabled))
	return nil
}

// Drain starts a job, polls it to idle, and verifies its last run outcome.
// Polling is the only supported completion detection; the engine pushes no
// notifications. The wait honors ctx cancellation (the started job itself
// is not retracted, only the wait is abandoned) and a hard maximum so no
// caller blocks indefinitely.
func (o *JobOrchestrator) Drain(ctx context.Context, jobName string, interval, maxWait time.Duration) error {
	log := o.logger.With(zap.String("job", jobName))

	handle, err := o.engine.Start(ctx, jobName)
	if err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("start-job", o.role).Inc()
		return wrapError(ClassEngine, "start-job", err)
	}
	log.Info("Job started, polling until idle",
		zap.Duration("poll_interval", interval),
		zap.Duration("max_wait", maxWait))

	if err := o.waitForIdle(ctx, handle, interval, maxWait); err != nil {
		return err
	}

	outcome, err := o.engine.LastOutcome(ctx, jobName)
	if err != nil {
		o.metrics.EngineErrorsTotal.WithLabelValues("last-outcome", o.role).Inc()
		return wrapError(ClassEngine, "read-last-outcome", err)
	}
	switch outcome {
	case OutcomeSucceeded:
		log.Info("Job drained successfully")
		return nil
	case OutcomeFailed:
		return newError(ClassEngine, "drain-job", "last run of job %q reported failure", jobName)
	default:
		return newError(ClassEngine, "drain-job", "last run outcome of job %q is unknown", jobName)
	}
}

func (o *JobOrchestrator) waitForIdle(ctx context.Context, handle RunHandle, interval, maxWait time.Duration) error {
	log := o.logger.With(zap.String("job", handle.JobName))
	start := time.Now()
	deadline := start.Add(maxWait)
	defer func() {
		o.metrics.PollWaitDuration.WithLabelValues(handle.JobName).Observe(time.Since(start).Seconds())
	}()

	for {
		state, err := o.engine.PollStatus(ctx, handle)
		if err != nil {
			o.metrics.EngineErrorsTotal.WithLabelValues("poll-status", o.role).Inc()
			return wrapError(ClassEngine, "poll-job-status", err)
		}
		if state == RunStateIdle {
			return nil
		}

		if time.Now().After(deadline) {
			log.Warn("Poll wait exceeded maximum", zap.Duration("max_wait", maxWait))
			return newError(ClassTimeout, "poll-job-status",
				"job %q did not reach idle within %s", handle.JobName, maxWait)
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			log.Warn("Poll wait cancelled; started job is not retracted", zap.Error(ctx.Err()))
			return newError(ClassEngine, "poll-job-status",
				"cancelled while waiting for job %q to reach idle: %v", handle.JobName, ctx.Err())
		}
	}
}
