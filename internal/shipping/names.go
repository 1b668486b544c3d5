package shipping

import "path"

// ReplicationTopology describes one primary role shipping to one or more
// secondary roles for a set of databases.
type ReplicationTopology struct {
	PrimaryRole         string
	SecondaryRoles      []string
	Databases           []string
	SharedBackupPath    string
	LocalBackupPath     string
	CopyDestinationPath string
}

// NamePlan holds every per-database resource name derived for one
// (secondary role x database) pair. Deriving them in one place keeps the
// self-replication collision rule consistent across the pipeline.
type NamePlan struct {
	PrimaryDatabase   string
	SecondaryDatabase string

	ProduceJob   string
	TransportJob string
	ApplyJob     string

	ProduceSchedule   string
	TransportSchedule string
	ApplySchedule     string

	// Per-database subdirectories of the configured share paths.
	SharedDir string
	LocalDir  string
	CopyDir   string
}

// BuildNames derives the resource names for one pair. The collision rule:
// when primary and secondary are the same role, the derived secondary
// database name must differ from the primary database name, which requires
// a rename prefix or suffix.
func BuildNames(t ReplicationTopology, secondaryRole, database, renamePrefix, renameSuffix string) (NamePlan, error) {
	secondaryDB := renamePrefix + database + renameSuffix
	if secondaryRole == t.PrimaryRole && secondaryDB == database {
		return NamePlan{}, newError(ClassConfiguration, "derive-names",
			"database %q would replicate onto itself on role %q; supply a rename prefix or suffix",
			database, secondaryRole)
	}

	return NamePlan{
		PrimaryDatabase:   database,
		SecondaryDatabase: secondaryDB,

		ProduceJob:   "LSBackup_" + database,
		TransportJob: "LSCopy_" + t.PrimaryRole + "_" + database,
		ApplyJob:     "LSRestore_" + t.PrimaryRole + "_" + database,

		ProduceSchedule:   "LSBackupSchedule_" + database,
		TransportSchedule: "LSCopySchedule_" + t.PrimaryRole + "_" + database,
		ApplySchedule:     "LSRestoreSchedule_" + t.PrimaryRole + "_" + database,

		SharedDir: path.Join(t.SharedBackupPath, database),
		LocalDir:  path.Join(t.LocalBackupPath, database),
		CopyDir:   path.Join(t.CopyDestinationPath, database),
	}, nil
}
