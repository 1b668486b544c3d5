package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopology() ReplicationTopology {
	return ReplicationTopology{
		PrimaryRole:         "db-primary",
		SecondaryRoles:      []string{"db-dr"},
		Databases:           []string{"sales"},
		SharedBackupPath:    "/mnt/share/backups",
		LocalBackupPath:     "/var/backups",
		CopyDestinationPath: "/mnt/dr/incoming",
	}
}

func TestBuildNames(t *testing.T) {
	plan, err := BuildNames(testTopology(), "db-dr", "sales", "", "")
	require.NoError(t, err)

	assert.Equal(t, "sales", plan.PrimaryDatabase)
	assert.Equal(t, "sales", plan.SecondaryDatabase)
	assert.Equal(t, "LSBackup_sales", plan.ProduceJob)
	assert.Equal(t, "LSCopy_db-primary_sales", plan.TransportJob)
	assert.Equal(t, "LSRestore_db-primary_sales", plan.ApplyJob)
	assert.Equal(t, "LSBackupSchedule_sales", plan.ProduceSchedule)
	assert.Equal(t, "LSCopySchedule_db-primary_sales", plan.TransportSchedule)
	assert.Equal(t, "LSRestoreSchedule_db-primary_sales", plan.ApplySchedule)
	assert.Equal(t, "/mnt/share/backups/sales", plan.SharedDir)
	assert.Equal(t, "/var/backups/sales", plan.LocalDir)
	assert.Equal(t, "/mnt/dr/incoming/sales", plan.CopyDir)
}

func TestBuildNamesRename(t *testing.T) {
	plan, err := BuildNames(testTopology(), "db-dr", "sales", "dr_", "_copy")
	require.NoError(t, err)
	assert.Equal(t, "dr_sales_copy", plan.SecondaryDatabase)
}

func TestBuildNamesSelfReplicationCollision(t *testing.T) {
	// Shipping a database back onto its own role without renaming would
	// target the source database itself.
	_, err := BuildNames(testTopology(), "db-primary", "sales", "", "")
	require.Error(t, err)
	assert.Equal(t, ClassConfiguration, Classify(err))

	// A rename on the same role is fine.
	plan, err := BuildNames(testTopology(), "db-primary", "sales", "", "_dr")
	require.NoError(t, err)
	assert.Equal(t, "sales_dr", plan.SecondaryDatabase)

	// The same database name on a different role is fine too.
	_, err = BuildNames(testTopology(), "db-dr", "sales", "", "")
	require.NoError(t, err)
}
