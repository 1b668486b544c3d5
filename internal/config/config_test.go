package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASES", "sales,billing")
	t.Setenv("SECONDARY_HOSTS", "db-dr1,db-dr2")
	t.Setenv("SHARED_BACKUP_PATH", "/mnt/share/backups")
	t.Setenv("COPY_DESTINATION_PATH", "/mnt/dr/incoming")
	t.Setenv("PRIMARY_DIALECT", "sqlserver")
	t.Setenv("PRIMARY_HOST", "db-primary")
	t.Setenv("PRIMARY_PORT", "1433")
	t.Setenv("PRIMARY_USER", "sa")
	t.Setenv("PRIMARY_PASSWORD", "secret")
	t.Setenv("SECONDARY_DIALECT", "sqlserver")
	t.Setenv("SECONDARY_PORT", "1433")
	t.Setenv("SECONDARY_USER", "sa")
	t.Setenv("SECONDARY_PASSWORD", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"sales", "billing"}, cfg.Databases)
	assert.Equal(t, []string{"db-dr1", "db-dr2"}, cfg.SecondaryHosts)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.Force)
	assert.Equal(t, 4320, cfg.RetentionMinutes)
	assert.Equal(t, 15, cfg.ProduceIntervalMinutes)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.PollTimeout)
	assert.False(t, cfg.DeferFinalPromotion)
	assert.Equal(t, 9091, cfg.MetricsPort)
	// Local backup path falls back to the shared path.
	assert.Equal(t, "/mnt/share/backups", cfg.LocalBackupPath)
}

func TestLoadRejectsBlankDatabaseNames(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASES", "sales,,billing")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databases list contains an empty name")
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := &Config{
		Databases:                []string{"sales"},
		SecondaryHosts:           []string{"db-dr"},
		Workers:                  0,
		RetentionMinutes:         -5,
		ConnPoolSize:             0,
		PollInterval:             time.Second,
		PollTimeout:              time.Millisecond,
		ProduceIntervalMinutes:   0,
		TransportIntervalMinutes: 15,
		ApplyIntervalMinutes:     15,
		MetricsPort:              9091,
		PrimaryDB:                DatabaseConfig{Dialect: "oracle", Host: "db-primary", Port: 1521, SSLMode: "disable"},
		SecondaryDB:              DatabaseConfig{Dialect: "sqlserver", Port: 1433, SSLMode: "disable"},
	}

	err := validateConfig(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid primary dialect")
	assert.Contains(t, msg, "workers must be positive")
	assert.Contains(t, msg, "retention minutes must be positive")
	assert.Contains(t, msg, "poll timeout must exceed the poll interval")
	assert.Contains(t, msg, "produce interval must be between 1 and 59 minutes")
}

func TestValidateInitModeExclusivity(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INIT_GENERATE_NEW", "true")
	t.Setenv("INIT_REUSE_BACKUP_FILE", "/mnt/dr/seed.bak")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most one initialization mode")
}

func TestValidateVaultRequiresAddr(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VAULT_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_ADDR is required")
}

func TestValidatePostgresSSLMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECONDARY_DIALECT", "postgres")
	t.Setenv("SECONDARY_SSLMODE", "bogus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SSL mode for secondaries")
}
