package shipping

import "context"

// RunState is the observable state of a started job run. The engine offers
// no push notification, so completion is always detected by polling.
type RunState int

const (
	RunStateUnknown RunState = iota
	RunStateRunning
	RunStateIdle
)

// JobOutcome is the recorded result of a job's most recent run.
type JobOutcome int

const (
	OutcomeUnknown JobOutcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// RestoreMode selects the end state a seeded secondary database is left in.
type RestoreMode int

const (
	// RestoreNoRecovery keeps the database restoring so further log units
	// can be applied.
	RestoreNoRecovery RestoreMode = iota
	// RestoreStandby leaves the database readable between applies.
	RestoreStandby
)

// DatabaseState is the coarse replication-relevant state of a database.
type DatabaseState int

const (
	StateAbsent DatabaseState = iota
	StateOnline
	StateRestoring
	StateStandby
)

func (s DatabaseState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateOnline:
		return "online"
	case StateRestoring:
		return "restoring"
	case StateStandby:
		return "standby"
	default:
		return "unknown"
	}
}

// JobDefinition describes one scheduled, externally-executed job.
type JobDefinition struct {
	Name             string
	Command          string
	RetentionMinutes int
	Enabled          bool
}

// RunHandle identifies one started run of a job for polling.
type RunHandle struct {
	JobName string
	Token   string
}

// JobEngine is the capability set of the external job-execution engine.
// These primitives are the only operations that cross the engine boundary;
// everything above composes them without engine-specific knowledge.
// Registration operations are create-or-replace and safe to re-apply.
type JobEngine interface {
	JobExists(ctx context.Context, name string) (bool, error)
	CreateOrReplaceJob(ctx context.Context, def JobDefinition) error
	CreateOrReplaceSchedule(ctx context.Context, jobName string, spec ScheduleSpec) error
	SetEnabled(ctx context.Context, jobName string, enabled bool) error
	Start(ctx context.Context, jobName string) (RunHandle, error)
	PollStatus(ctx context.Context, h RunHandle) (RunState, error)
	LastOutcome(ctx context.Context, jobName string) (JobOutcome, error)
}

// Instance is the connection/authentication layer to one role, reduced to
// the precondition checks and the promotion statement this design needs.
type Instance interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	// RecoveryModel reports the logging mode of a database ("FULL" is
	// required for log shipping).
	RecoveryModel(ctx context.Context, name string) (string, error)
	DatabaseState(ctx context.Context, name string) (DatabaseState, error)
	// Promote issues the one-way recovery transition that ends replication
	// and brings the database fully online. Not reversible.
	Promote(ctx context.Context, name string) error
	// RegisterReplicationLink persists the primary->secondary replication
	// metadata record owned by the external catalog.
	RegisterReplicationLink(ctx context.Context, link ReplicationLink) error
}

// ReplicationLink is the per-database replication metadata written on the
// primary when a topology is established.
type ReplicationLink struct {
	PrimaryRole         string
	PrimaryDatabase     string
	SecondaryRole       string
	SecondaryDatabase   string
	SharedBackupPath    string
	CopyDestinationPath string
	RetentionMinutes    int
	Monitor             MonitorConfig
}

// MonitorConfig identifies the monitor instance a replication link reports to.
type MonitorConfig struct {
	Server                string
	SecurityMode          string
	Credential            string
	ThresholdAlertEnabled bool
}

// PathService validates and provisions backup share paths as seen from one role.
type PathService interface {
	Reachable(ctx context.Context, path string) (bool, error)
	EnsureDirectory(ctx context.Context, path string) error
}

// Seeder is the backup/restore primitive used to seed a secondary before
// ongoing replication begins.
type Seeder interface {
	// ProduceBaseCopy creates a fresh base copy of database and returns its
	// artifact locator.
	ProduceBaseCopy(ctx context.Context, database string) (string, error)
	// Apply restores the artifact (a file or a folder of files) onto
	// targetDatabase, leaving it in the requested end state.
	Apply(ctx context.Context, artifact, targetDatabase string, mode RestoreMode) error
}

// Catalog is the read-only view of the persisted replication catalog on a
// secondary role. ShippingEntry returns (nil, nil) when the database is not
// replicated.
type Catalog interface {
	ShippingEntry(ctx context.Context, database string) (*RecoveryCatalogEntry, error)
}

// Role bundles the collaborator handles for one server role. The
// orchestrators never reach past these interfaces.
type Role struct {
	Name    string
	Server  Instance
	Engine  JobEngine
	Paths   PathService
	Seeder  Seeder
	Catalog Catalog
}
