package shipping

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/metrics"
)

// FullRecoveryModel is the logging mode a primary database must be in
// before its transaction log can be shipped.
const FullRecoveryModel = "FULL"

// ConfiguratorOptions carries the per-run settings of a Configure batch.
// The options value is immutable once the run starts; every pair sees the
// same configuration rather than state mutated across iterations.
type ConfiguratorOptions struct {
	// Force makes registration overwrite same-named jobs and schedules and
	// resolves an undecidable initialization to generate-new.
	Force bool

	// RenamePrefix/RenameSuffix derive the secondary database name from the
	// primary one. Required when a database ships to its own role.
	RenamePrefix string
	RenameSuffix string

	// RestoreStandby leaves seeded secondaries readable between applies
	// instead of keeping them in a restoring state.
	RestoreStandby bool

	RetentionMinutes int

	ProduceEnabled   bool
	TransportEnabled bool
	ApplyEnabled     bool

	// Workers bounds how many (role x database) pairs are configured
	// concurrently. Pairs are independent; no ordering is guaranteed or
	// required across them.
	Workers int

	Monitor MonitorConfig
	Init    InitializationRequest

	ProduceSchedule   ScheduleSpec
	TransportSchedule ScheduleSpec
	ApplySchedule     ScheduleSpec
}

// TopologyConfigurator establishes the produce/transport/apply job triple
// for every (secondary role x database) pair of a topology. Each pair either
// completes fully or fails in isolation with one outcome record; a failure
// never leaves other pairs unprocessed.
type TopologyConfigurator struct {
	topology    ReplicationTopology
	primary     Role
	secondaries []Role
	opts        ConfiguratorOptions
	logger      *zap.Logger
	metrics     *metrics.Store

	primaryJobs *JobOrchestrator
}

func NewTopologyConfigurator(topology ReplicationTopology, primary Role, secondaries []Role,
	opts ConfiguratorOptions, logger *zap.Logger, metricsStore *metrics.Store) *TopologyConfigurator {

	topology.PrimaryRole = primary.Name
	topology.SecondaryRoles = topology.SecondaryRoles[:0]
	for _, sec := range secondaries {
		topology.SecondaryRoles = append(topology.SecondaryRoles, sec.Name)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	return &TopologyConfigurator{
		topology:    topology,
		primary:     primary,
		secondaries: secondaries,
		opts:        opts,
		logger:      logger.Named("configurator"),
		metrics:     metricsStore,
		primaryJobs: NewJobOrchestrator(primary.Name, primary.Engine, logger, metricsStore),
	}
}

type normalizedSchedules struct {
	produce   ScheduleSpec
	transport ScheduleSpec
	apply     ScheduleSpec
}

type configurePair struct {
	secondary Role
	jobs      *JobOrchestrator
	database  string
}

// Configure runs the full establishment pipeline. A ConfigurationError in
// the shared input (invalid topology or schedule) aborts the whole batch
// before any unit begins; from that point on every pair yields exactly one
// outcome record and failures are isolated per pair.
func (c *TopologyConfigurator) Configure(ctx context.Context) ([]OutcomeRecord, error) {
	startTime := time.Now()
	c.logger.Info("Starting log shipping configuration run",
		zap.String("primary", c.topology.PrimaryRole),
		zap.Strings("secondaries", c.topology.SecondaryRoles),
		zap.Strings("databases", c.topology.Databases),
		zap.Bool("force", c.opts.Force),
		zap.Int("workers", c.opts.Workers),
	)
	c.metrics.OrchestrationRunning.Set(1)
	defer c.metrics.OrchestrationRunning.Set(0)
	defer func() {
		c.metrics.RunDuration.WithLabelValues("configure").Observe(time.Since(startTime).Seconds())
	}()

	if err := c.validateTopology(); err != nil {
		return nil, err
	}
	schedules, err := c.normalizeSchedules()
	if err != nil {
		c.logger.Error("Shared schedule specification is invalid; aborting before any unit", zap.Error(err))
		return nil, err
	}

	pairs := make([]configurePair, 0, len(c.secondaries)*len(c.topology.Databases))
	for _, sec := range c.secondaries {
		jobs := NewJobOrchestrator(sec.Name, sec.Engine, c.logger, c.metrics)
		for _, database := range c.topology.Databases {
			pairs = append(pairs, configurePair{secondary: sec, jobs: jobs, database: database})
		}
	}

	reporter := NewReporter()
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.opts.Workers)

	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			reporter.Append(c.cancelledOutcome(pair, ctx.Err()))
			continue
		default:
		}

		wg.Add(1)
		go func(p configurePair) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				c.logger.Warn("Context cancelled while waiting for worker slot",
					zap.String("database", p.database), zap.String("secondary", p.secondary.Name))
				reporter.Append(c.cancelledOutcome(p, ctx.Err()))
				return
			}

			rec := c.configurePair(ctx, p, schedules)
			c.metrics.UnitDuration.WithLabelValues("configure", p.database).Observe(rec.Duration.Seconds())
			c.metrics.UnitsTotal.WithLabelValues("configure", string(rec.Result)).Inc()
			reporter.Append(rec)
		}(pair)
	}
	wg.Wait()

	records := reporter.Records()
	c.logger.Info("Configuration run finished",
		zap.Duration("total_duration", time.Since(startTime)),
		zap.Int("units", len(records)),
		zap.Int("failed_units", reporter.FailedCount()),
	)
	return records, nil
}

func (c *TopologyConfigurator) validateTopology() error {
	switch {
	case c.topology.PrimaryRole == "":
		return newError(ClassConfiguration, "validate-topology", "primary role is not set")
	case len(c.secondaries) == 0:
		return newError(ClassConfiguration, "validate-topology", "at least one secondary role is required")
	case len(c.topology.Databases) == 0:
		return newError(ClassConfiguration, "validate-topology", "at least one database is required")
	case c.topology.SharedBackupPath == "":
		return newError(ClassConfiguration, "validate-topology", "shared backup path is not set")
	case c.topology.CopyDestinationPath == "":
		return newError(ClassConfiguration, "validate-topology", "copy destination path is not set")
	}
	return nil
}

func (c *TopologyConfigurator) normalizeSchedules() (normalizedSchedules, error) {
	var out normalizedSchedules
	var err error
	if out.produce, err = Normalize(c.opts.ProduceSchedule); err != nil {
		return out, wrapError(ClassConfiguration, "normalize-produce-schedule", err)
	}
	if out.transport, err = Normalize(c.opts.TransportSchedule); err != nil {
		return out, wrapError(ClassConfiguration, "normalize-transport-schedule", err)
	}
	if out.apply, err = Normalize(c.opts.ApplySchedule); err != nil {
		return out, wrapError(ClassConfiguration, "normalize-apply-schedule", err)
	}
	return out, nil
}

func (c *TopologyConfigurator) cancelledOutcome(p configurePair, cause error) OutcomeRecord {
	return OutcomeRecord{
		PrimaryRole:     c.topology.PrimaryRole,
		SecondaryRole:   p.secondary.Name,
		PrimaryDatabase: p.database,
		Result:          ResultFailed,
		Comment:         "cancelled before configuration could start",
		Err:             newError(ClassEngine, "configure", "cancelled: %v", cause),
	}
}

// configurePair drives the ordered pipeline for one (secondary role x
// database) pair: preconditions, seeding, produce job on the primary,
// transport and apply jobs on the secondary. The first failing step
// short-circuits the remaining steps for this pair only.
func (c *TopologyConfigurator) configurePair(ctx context.Context, p configurePair, schedules normalizedSchedules) OutcomeRecord {
	start := time.Now()
	log := c.logger.With(
		zap.String("database", p.database),
		zap.String("secondary", p.secondary.Name),
	)

	rec := OutcomeRecord{
		PrimaryRole:     c.topology.PrimaryRole,
		SecondaryRole:   p.secondary.Name,
		PrimaryDatabase: p.database,
	}
	fail := func(comment string, err error) OutcomeRecord {
		rec.Result = ResultFailed
		rec.Comment = comment
		rec.Err = err
		rec.Duration = time.Since(start)
		log.Error("Configuration failed for unit",
			zap.String("step", comment),
			zap.String("class", string(Classify(err))),
			zap.Error(err))
		return rec
	}

	names, err := BuildNames(c.topology, p.secondary.Name, p.database, c.opts.RenamePrefix, c.opts.RenameSuffix)
	if err != nil {
		return fail("deriving resource names", err)
	}
	rec.SecondaryDatabase = names.SecondaryDatabase

	// Preconditions on the primary side.
	exists, err := c.primary.Server.DatabaseExists(ctx, p.database)
	if err != nil {
		return fail("checking primary database", wrapError(ClassEngine, "check-primary-database", err))
	}
	if !exists {
		return fail("database does not exist on primary role",
			newError(ClassPrecondition, "check-primary-database",
				"database %q does not exist on role %q", p.database, c.topology.PrimaryRole))
	}
	model, err := c.primary.Server.RecoveryModel(ctx, p.database)
	if err != nil {
		return fail("reading recovery model", wrapError(ClassEngine, "read-recovery-model", err))
	}
	if !strings.EqualFold(model, FullRecoveryModel) {
		return fail("not in required recovery mode",
			newError(ClassPrecondition, "read-recovery-model",
				"database %q is in recovery model %q; log shipping requires %q", p.database, model, FullRecoveryModel))
	}

	if err := c.preparePaths(ctx, p.secondary, names); err != nil {
		return fail("validating backup share paths", err)
	}

	// Seed the secondary if required.
	plan, err := c.resolveSeedPlan(ctx, p.secondary, names)
	if err != nil {
		return fail("resolving initialization plan", err)
	}
	if plan.Kind == InitPendingDecision {
		return fail("initialization decision required",
			newError(ClassPrecondition, "resolve-initialization",
				"secondary database %q does not exist on role %q and no seeding mode was requested; request one explicitly or enable force mode",
				names.SecondaryDatabase, p.secondary.Name))
	}
	if err := c.executeSeedPlan(ctx, p.secondary, names, plan, log); err != nil {
		return fail("seeding secondary database", err)
	}

	// Primary-side produce job and the replication link record.
	produceSpec := schedules.produce
	produceSpec.Name = names.ProduceSchedule
	err = c.primaryJobs.Register(ctx, "produce", JobDefinition{
		Name:             names.ProduceJob,
		Command:          fmt.Sprintf("produce --database %s --to %s", p.database, names.SharedDir),
		RetentionMinutes: c.opts.RetentionMinutes,
		Enabled:          c.opts.ProduceEnabled,
	}, produceSpec, c.opts.Force)
	if err != nil {
		return fail("registering produce job", err)
	}

	err = c.primary.Server.RegisterReplicationLink(ctx, ReplicationLink{
		PrimaryRole:         c.topology.PrimaryRole,
		PrimaryDatabase:     p.database,
		SecondaryRole:       p.secondary.Name,
		SecondaryDatabase:   names.SecondaryDatabase,
		SharedBackupPath:    names.SharedDir,
		CopyDestinationPath: names.CopyDir,
		RetentionMinutes:    c.opts.RetentionMinutes,
		Monitor:             c.opts.Monitor,
	})
	if err != nil {
		return fail("registering replication link", wrapError(ClassEngine, "register-replication-link", err))
	}

	// Secondary-side transport and apply jobs.
	transportSpec := schedules.transport
	transportSpec.Name = names.TransportSchedule
	err = p.jobs.Register(ctx, "transport", JobDefinition{
		Name:             names.TransportJob,
		Command:          fmt.Sprintf("transport --from %s --to %s", names.SharedDir, names.CopyDir),
		RetentionMinutes: c.opts.RetentionMinutes,
		Enabled:          c.opts.TransportEnabled,
	}, transportSpec, c.opts.Force)
	if err != nil {
		return fail("registering transport job", err)
	}

	applySpec := schedules.apply
	applySpec.Name = names.ApplySchedule
	applyCommand := fmt.Sprintf("apply --database %s --from %s", names.SecondaryDatabase, names.CopyDir)
	if c.opts.RestoreStandby {
		applyCommand += " --standby"
	}
	err = p.jobs.Register(ctx, "apply", JobDefinition{
		Name:             names.ApplyJob,
		Command:          applyCommand,
		RetentionMinutes: c.opts.RetentionMinutes,
		Enabled:          c.opts.ApplyEnabled,
	}, applySpec, c.opts.Force)
	if err != nil {
		return fail("registering apply job", err)
	}

	rec.Result = ResultSuccess
	rec.Comment = "log shipping configured"
	rec.Duration = time.Since(start)
	log.Info("Unit configured",
		zap.String("produce_job", names.ProduceJob),
		zap.String("transport_job", names.TransportJob),
		zap.String("apply_job", names.ApplyJob),
		zap.Duration("duration", rec.Duration))
	return rec
}

// preparePaths verifies the configured share roots are reachable from the
// role that uses them and auto-creates the per-database subdirectories.
func (c *TopologyConfigurator) preparePaths(ctx context.Context, secondary Role, names NamePlan) error {
	ok, err := c.primary.Paths.Reachable(ctx, c.topology.SharedBackupPath)
	if err != nil {
		return wrapError(ClassEngine, "check-shared-path", err)
	}
	if !ok {
		return newError(ClassPrecondition, "check-shared-path",
			"shared backup path %q is not reachable from role %q", c.topology.SharedBackupPath, c.primary.Name)
	}
	if err := c.primary.Paths.EnsureDirectory(ctx, names.SharedDir); err != nil {
		return wrapError(ClassEngine, "ensure-shared-dir", err)
	}
	if c.topology.LocalBackupPath != "" {
		if err := c.primary.Paths.EnsureDirectory(ctx, names.LocalDir); err != nil {
			return wrapError(ClassEngine, "ensure-local-dir", err)
		}
	}

	ok, err = secondary.Paths.Reachable(ctx, c.topology.CopyDestinationPath)
	if err != nil {
		return wrapError(ClassEngine, "check-copy-path", err)
	}
	if !ok {
		return newError(ClassPrecondition, "check-copy-path",
			"copy destination path %q is not reachable from role %q", c.topology.CopyDestinationPath, secondary.Name)
	}
	if err := secondary.Paths.EnsureDirectory(ctx, names.CopyDir); err != nil {
		return wrapError(ClassEngine, "ensure-copy-dir", err)
	}
	return nil
}

func (c *TopologyConfigurator) resolveSeedPlan(ctx context.Context, secondary Role, names NamePlan) (InitializationPlan, error) {
	secExists, err := secondary.Server.DatabaseExists(ctx, names.SecondaryDatabase)
	if err != nil {
		return InitializationPlan{}, wrapError(ClassEngine, "check-secondary-database", err)
	}
	restorePending := false
	if secExists {
		state, err := secondary.Server.DatabaseState(ctx, names.SecondaryDatabase)
		if err != nil {
			return InitializationPlan{}, wrapError(ClassEngine, "read-secondary-state", err)
		}
		restorePending = state == StateRestoring || state == StateStandby
	}
	return ResolveInitialization(ctx, secondary.Paths, c.opts.Init, secExists, restorePending, c.opts.Force)
}

func (c *TopologyConfigurator) executeSeedPlan(ctx context.Context, secondary Role, names NamePlan,
	plan InitializationPlan, log *zap.Logger) error {

	if plan.Kind == InitNone {
		log.Info("Secondary database already initialized, skipping seed")
		return nil
	}

	mode := RestoreNoRecovery
	if c.opts.RestoreStandby {
		mode = RestoreStandby
	}

	artifact := plan.BackupPath
	if plan.Kind == InitGenerateNew {
		log.Info("Producing fresh base copy on primary")
		var err error
		artifact, err = c.primary.Seeder.ProduceBaseCopy(ctx, names.PrimaryDatabase)
		if err != nil {
			c.metrics.SeedsTotal.WithLabelValues(plan.Kind.String(), "failed").Inc()
			return wrapError(ClassEngine, "produce-base-copy", err)
		}
	}

	log.Info("Applying base copy on secondary",
		zap.String("artifact", artifact),
		zap.String("plan", plan.Kind.String()),
		zap.Bool("standby", mode == RestoreStandby))
	if err := secondary.Seeder.Apply(ctx, artifact, names.SecondaryDatabase, mode); err != nil {
		c.metrics.SeedsTotal.WithLabelValues(plan.Kind.String(), "failed").Inc()
		return wrapError(ClassEngine, "apply-base-copy", err)
	}
	c.metrics.SeedsTotal.WithLabelValues(plan.Kind.String(), "success").Inc()
	return nil
}
