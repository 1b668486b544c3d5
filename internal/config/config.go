package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"go.uber.org/multierr"
)

type Config struct {
	// Topology
	Databases      []string `env:"DATABASES,required" envSeparator:","`
	SecondaryHosts []string `env:"SECONDARY_HOSTS,required" envSeparator:","` // Role names; each combines with SecondaryDB for the connection
	Workers        int      `env:"WORKERS" envDefault:"4"`

	// Backup share layout
	SharedBackupPath    string `env:"SHARED_BACKUP_PATH,required"`    // Share as the primary sees it
	LocalBackupPath     string `env:"LOCAL_BACKUP_PATH"`              // Primary-local mount of the same share; defaults to SharedBackupPath
	CopyDestinationPath string `env:"COPY_DESTINATION_PATH,required"` // Landing folder as secondaries see it

	// Establishment behavior
	Force            bool   `env:"FORCE" envDefault:"false"` // Overwrite same-named jobs instead of failing
	RenamePrefix     string `env:"RENAME_PREFIX"`
	RenameSuffix     string `env:"RENAME_SUFFIX"`
	RestoreStandby   bool   `env:"RESTORE_STANDBY" envDefault:"false"` // Leave secondaries readable between applies
	RetentionMinutes int    `env:"RETENTION_MINUTES" envDefault:"4320"`

	// Secondary initialization; at most one may be set
	InitGenerateNew     bool   `env:"INIT_GENERATE_NEW" envDefault:"false"`
	InitReuseBackupFile string `env:"INIT_REUSE_BACKUP_FILE"`
	InitReuseBackupDir  string `env:"INIT_REUSE_BACKUP_DIR"`

	// Job schedules (every-N-minutes cadence per job kind)
	ProduceIntervalMinutes   int  `env:"PRODUCE_INTERVAL_MINUTES" envDefault:"15"`
	TransportIntervalMinutes int  `env:"TRANSPORT_INTERVAL_MINUTES" envDefault:"15"`
	ApplyIntervalMinutes     int  `env:"APPLY_INTERVAL_MINUTES" envDefault:"15"`
	ProduceEnabled           bool `env:"PRODUCE_ENABLED" envDefault:"true"`
	TransportEnabled         bool `env:"TRANSPORT_ENABLED" envDefault:"true"`
	ApplyEnabled             bool `env:"APPLY_ENABLED" envDefault:"true"`

	// Recovery
	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	PollTimeout         time.Duration `env:"POLL_TIMEOUT" envDefault:"1h"`
	DeferFinalPromotion bool          `env:"DEFER_FINAL_PROMOTION" envDefault:"false"`

	// Monitor instance the replication links report to
	Monitor MonitorConfig `envPrefix:"MONITOR_"`

	// Vault secret backend; when enabled, role credentials come from the
	// configured KV paths instead of PRIMARY_PASSWORD/SECONDARY_PASSWORD.
	VaultEnabled            bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr               string `env:"VAULT_ADDR"`
	VaultToken              string `env:"VAULT_TOKEN"`
	VaultCACert             string `env:"VAULT_CACERT"`
	VaultSkipVerify         bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`
	VaultPrimaryCredsPath   string `env:"VAULT_PRIMARY_CREDS_PATH"`
	VaultSecondaryCredsPath string `env:"VAULT_SECONDARY_CREDS_PATH"`
	VaultUsernameKey        string `env:"VAULT_USERNAME_KEY" envDefault:"username"`
	VaultPasswordKey        string `env:"VAULT_PASSWORD_KEY" envDefault:"password"`

	// Retry logic for initial connections
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`

	// Connection Pool
	ConnPoolSize    int           `env:"CONN_POOL_SIZE" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`

	// Local job engine store (sqlite file); empty keeps the engine in-memory
	LocalJobStorePath string `env:"LOCAL_JOB_STORE_PATH"`

	// Observability & Debugging
	EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
	EnablePprof       bool `env:"ENABLE_PPROF" envDefault:"false"`
	MetricsPort       int  `env:"METRICS_PORT" envDefault:"9091"` // Port for /metrics, /healthz, /readyz, /debug/pprof

	// Database Configurations. Every secondary host shares the SECONDARY_
	// credentials; the host name comes from SecondaryHosts.
	PrimaryDB   DatabaseConfig `envPrefix:"PRIMARY_"`
	SecondaryDB DatabaseConfig `envPrefix:"SECONDARY_"`
}

type MonitorConfig struct {
	Server                string `env:"SERVER"`
	SecurityMode          string `env:"SECURITY_MODE" envDefault:"integrated"`
	Credential            string `env:"CREDENTIAL"`
	ThresholdAlertEnabled bool   `env:"THRESHOLD_ALERT_ENABLED" envDefault:"false"`
}

type DatabaseConfig struct {
	Dialect  string `env:"DIALECT,required"`
	Host     string `env:"HOST"` // Secondary hosts come from SECONDARY_HOSTS instead
	Port     int    `env:"PORT,required"`
	User     string `env:"USER,required"`
	Password string `env:"PASSWORD"` // May come from Vault instead; see secrets
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	if cfg.LocalBackupPath == "" {
		cfg.LocalBackupPath = cfg.SharedBackupPath
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig accumulates every problem instead of stopping at the first,
// so one run surfaces the whole list.
func validateConfig(cfg *Config) error {
	var errs error

	validDialects := map[string]bool{"sqlserver": true, "postgres": true}
	checkDialect := func(dialect, name string) {
		if !validDialects[strings.ToLower(dialect)] {
			errs = multierr.Append(errs, fmt.Errorf("invalid %s dialect: %s (valid: postgres, sqlserver)", name, dialect))
		}
	}
	checkDialect(cfg.PrimaryDB.Dialect, "primary")
	checkDialect(cfg.SecondaryDB.Dialect, "secondary")

	if cfg.PrimaryDB.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("primary host is required"))
	}

	validatePort := func(port int, name string) {
		if port < 1 || port > 65535 {
			errs = multierr.Append(errs, fmt.Errorf("invalid %s port: %d", name, port))
		}
	}
	validatePort(cfg.PrimaryDB.Port, "primary")
	validatePort(cfg.SecondaryDB.Port, "secondary")
	validatePort(cfg.MetricsPort, "metrics")

	for _, database := range cfg.Databases {
		if strings.TrimSpace(database) == "" {
			errs = multierr.Append(errs, fmt.Errorf("databases list contains an empty name"))
			break
		}
	}
	for _, host := range cfg.SecondaryHosts {
		if strings.TrimSpace(host) == "" {
			errs = multierr.Append(errs, fmt.Errorf("secondary hosts list contains an empty name"))
			break
		}
	}

	if cfg.Workers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("workers must be positive"))
	}
	if cfg.RetentionMinutes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("retention minutes must be positive"))
	}
	if cfg.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max retries cannot be negative"))
	}
	if cfg.ConnPoolSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("connection pool size must be positive"))
	}
	if cfg.PollInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if cfg.PollTimeout <= cfg.PollInterval {
		errs = multierr.Append(errs, fmt.Errorf("poll timeout must exceed the poll interval"))
	}

	initModes := 0
	if cfg.InitGenerateNew {
		initModes++
	}
	if cfg.InitReuseBackupFile != "" {
		initModes++
	}
	if cfg.InitReuseBackupDir != "" {
		initModes++
	}
	if initModes > 1 {
		errs = multierr.Append(errs, fmt.Errorf("at most one initialization mode may be set (generate new, reuse file, reuse folder)"))
	}

	checkInterval := func(minutes int, name string) {
		if minutes < 1 || minutes > 59 {
			errs = multierr.Append(errs, fmt.Errorf("%s interval must be between 1 and 59 minutes, got %d", name, minutes))
		}
	}
	checkInterval(cfg.ProduceIntervalMinutes, "produce")
	checkInterval(cfg.TransportIntervalMinutes, "transport")
	checkInterval(cfg.ApplyIntervalMinutes, "apply")

	if cfg.VaultEnabled && cfg.VaultAddr == "" {
		errs = multierr.Append(errs, fmt.Errorf("VAULT_ADDR is required when Vault is enabled"))
	}

	validSSL := map[string]bool{
		"disable":     true,
		"allow":       true,
		"prefer":      true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if isSSLModeRelevant(cfg.PrimaryDB.Dialect) && !validSSL[strings.ToLower(cfg.PrimaryDB.SSLMode)] {
		errs = multierr.Append(errs, fmt.Errorf("invalid SSL mode for primary: %s", cfg.PrimaryDB.SSLMode))
	}
	if isSSLModeRelevant(cfg.SecondaryDB.Dialect) && !validSSL[strings.ToLower(cfg.SecondaryDB.SSLMode)] {
		errs = multierr.Append(errs, fmt.Errorf("invalid SSL mode for secondaries: %s", cfg.SecondaryDB.SSLMode))
	}

	return errs
}

func isSSLModeRelevant(dialect string) bool {
	return strings.ToLower(dialect) == "postgres"
}
