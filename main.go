// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/config"
	"github.com/arwahdevops/logship/internal/db"
	"github.com/arwahdevops/logship/internal/engine"
	"github.com/arwahdevops/logship/internal/logger"
	"github.com/arwahdevops/logship/internal/metrics"
	"github.com/arwahdevops/logship/internal/platform"
	"github.com/arwahdevops/logship/internal/secrets"
	"github.com/arwahdevops/logship/internal/server"
	"github.com/arwahdevops/logship/internal/shipping"
)

var (
	modeFlag           string
	databasesOverride  string
	workersOverride    int
	forceOverride      bool
	recoverRoleFlag    string
	deferPromotionFlag bool
	pollIntervalFlag   time.Duration
	pollTimeoutFlag    time.Duration
)

func main() {
	flag.StringVar(&modeFlag, "mode", "configure", "Run mode: configure (establish log shipping) or recover (drain and promote secondaries)")
	flag.StringVar(&databasesOverride, "databases", "", "Override DATABASES (comma-separated)")
	flag.IntVar(&workersOverride, "workers", 0, "Override WORKERS (must be > 0)")
	flag.BoolVar(&forceOverride, "force", false, "Enable force mode (overwrite same-named jobs, resolve missing secondaries to generate-new)")
	flag.StringVar(&recoverRoleFlag, "recover-role", "", "Secondary role to recover (defaults to the first entry of SECONDARY_HOSTS)")
	flag.BoolVar(&deferPromotionFlag, "defer-promotion", false, "Recover mode: drain to quiescence but skip the final promotion")
	flag.DurationVar(&pollIntervalFlag, "poll-interval", 0, "Override POLL_INTERVAL for job drain polling")
	flag.DurationVar(&pollTimeoutFlag, "poll-timeout", 0, "Override POLL_TIMEOUT for job drain polling")
	flag.Parse()

	// 1. Load environment variables (.env overrides)
	if err := godotenv.Overload(".env"); err != nil {
		stdlog.Printf("Warning: Could not load .env file: %v. Relying on environment variables.\n", err)
	}

	// 2. Initial config loading to get logger settings
	preCfg := &struct {
		EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
		DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	}{}
	if err := env.Parse(preCfg); err != nil {
		stdlog.Fatalf("Failed to parse pre-configuration for logger: %v", err)
	}

	// 3. Initialize Zap logger
	if err := logger.Init(preCfg.DebugMode, preCfg.EnableJsonLogging); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	mode := strings.ToLower(modeFlag)
	if mode != "configure" && mode != "recover" {
		logger.Log.Fatal("Invalid -mode flag", zap.String("mode", modeFlag), zap.String("allowed", "configure, recover"))
	}

	// 4. Load and validate full configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("Configuration loading error from environment", zap.Error(err))
	}
	applyCliOverrides(cfg)
	logLoadedConfig(cfg, mode)

	// 5. Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 6. Initialize Metrics Store
	metricsStore := metrics.NewMetricsStore()

	// 7. Initialize Secret Managers
	vaultMgr, vaultErr := secrets.NewVaultManager(cfg, logger.Log)
	if vaultErr != nil {
		if cfg.VaultEnabled {
			logger.Log.Fatal("Failed to initialize Vault secret manager", zap.Error(vaultErr))
		} else {
			logger.Log.Warn("Could not initialize Vault secret manager (Vault not enabled or config error)", zap.Error(vaultErr))
		}
	}
	availableSecretManagers := make([]secrets.SecretManager, 0)
	if vaultMgr != nil && vaultMgr.IsEnabled() {
		availableSecretManagers = append(availableSecretManagers, vaultMgr)
	}

	// 8. Load Credentials
	logger.Log.Info("Loading role credentials...")
	primaryCreds, err := loadCredentials(ctx, &cfg.PrimaryDB, "primary", cfg.VaultPrimaryCredsPath, cfg.VaultUsernameKey, cfg.VaultPasswordKey, availableSecretManagers)
	if err != nil {
		logger.Log.Fatal("Failed to load primary role credentials", zap.Error(err))
	}
	secondaryCreds, err := loadCredentials(ctx, &cfg.SecondaryDB, "secondary", cfg.VaultSecondaryCredsPath, cfg.VaultUsernameKey, cfg.VaultPasswordKey, availableSecretManagers)
	if err != nil {
		logger.Log.Fatal("Failed to load secondary role credentials", zap.Error(err))
	}

	// 9. Initialize database connections with retry, primary and all
	// secondaries concurrently.
	logger.Log.Info("Connecting to server roles...")
	var primaryConn *db.Connector
	secondaryConns := make(map[string]*db.Connector, len(cfg.SecondaryHosts))
	connErrs := make(map[string]error, len(cfg.SecondaryHosts)+1)
	var connMu sync.Mutex
	var dbWg sync.WaitGroup

	dbWg.Add(1)
	go func() {
		defer dbWg.Done()
		conn, cerr := connectDBWithRetry(ctx, cfg.PrimaryDB, cfg.PrimaryDB.Host,
			primaryCreds.Username, primaryCreds.Password, cfg.MaxRetries, cfg.RetryInterval, "primary", metricsStore)
		connMu.Lock()
		primaryConn, connErrs["primary"] = conn, cerr
		connMu.Unlock()
	}()
	for _, host := range cfg.SecondaryHosts {
		dbWg.Add(1)
		go func(host string) {
			defer dbWg.Done()
			conn, cerr := connectDBWithRetry(ctx, cfg.SecondaryDB, host,
				secondaryCreds.Username, secondaryCreds.Password, cfg.MaxRetries, cfg.RetryInterval, host, metricsStore)
			connMu.Lock()
			secondaryConns[host], connErrs[host] = conn, cerr
			connMu.Unlock()
		}(host)
	}
	dbWg.Wait()
	if connErrs["primary"] != nil {
		logger.Log.Fatal("Failed to establish primary role connection", zap.Error(connErrs["primary"]))
	}
	for _, host := range cfg.SecondaryHosts {
		if connErrs[host] != nil {
			logger.Log.Fatal("Failed to establish secondary role connection",
				zap.String("role", host), zap.Error(connErrs[host]))
		}
	}
	defer func() {
		logger.Log.Info("Closing role connections...")
		if err := primaryConn.Close(); err != nil {
			logger.Log.Error("Error closing primary connection", zap.Error(err))
		}
		for role, conn := range secondaryConns {
			if err := conn.Close(); err != nil {
				logger.Log.Error("Error closing secondary connection", zap.String("role", role), zap.Error(err))
			}
		}
	}()

	// 10. Optimize connection pools
	logger.Log.Info("Optimizing connection pools")
	if err := primaryConn.Optimize(cfg.ConnPoolSize, cfg.ConnMaxLifetime); err != nil {
		logger.Log.Warn("Failed to optimize primary pool", zap.Error(err))
	}
	for role, conn := range secondaryConns {
		if err := conn.Optimize(cfg.ConnPoolSize, cfg.ConnMaxLifetime); err != nil {
			logger.Log.Warn("Failed to optimize secondary pool", zap.String("role", role), zap.Error(err))
		}
	}

	// 11. Start HTTP Server
	go server.RunHTTPServer(ctx, cfg, metricsStore, primaryConn, secondaryConns, logger.Log)

	// 12. Assemble roles and run the requested orchestration
	primaryRole, err := buildRole(cfg, cfg.PrimaryDB.Host, cfg.PrimaryDB.Dialect, primaryConn)
	if err != nil {
		logger.Log.Fatal("Failed to assemble primary role", zap.Error(err))
	}
	secondaryRoles := make([]shipping.Role, 0, len(cfg.SecondaryHosts))
	for _, host := range cfg.SecondaryHosts {
		role, rerr := buildRole(cfg, host, cfg.SecondaryDB.Dialect, secondaryConns[host])
		if rerr != nil {
			logger.Log.Fatal("Failed to assemble secondary role", zap.String("role", host), zap.Error(rerr))
		}
		secondaryRoles = append(secondaryRoles, role)
	}

	var records []shipping.OutcomeRecord
	switch mode {
	case "configure":
		records, err = runConfigure(ctx, cfg, primaryRole, secondaryRoles, metricsStore)
		if err != nil {
			logger.Log.Error("Configuration run aborted before any unit started", zap.Error(err))
			os.Exit(3)
		}
	case "recover":
		records = runRecover(ctx, cfg, secondaryRoles, metricsStore)
	}

	// 13. Process and log results
	logger.Log.Info("Orchestration finished. Processing results...")
	exitCode := processResults(mode, records, metricsStore)

	logger.Log.Info("Shutdown complete. Exiting.", zap.Int("exit_code", exitCode))
	os.Exit(exitCode)
}

func applyCliOverrides(cfg *config.Config) {
	if databasesOverride != "" {
		logger.Log.Info("Overriding DATABASES with CLI flag",
			zap.Strings("env_value", cfg.Databases), zap.String("cli_value", databasesOverride))
		cfg.Databases = strings.Split(databasesOverride, ",")
	}
	if workersOverride > 0 {
		logger.Log.Info("Overriding WORKERS with CLI flag",
			zap.Int("env_value", cfg.Workers), zap.Int("cli_value", workersOverride))
		cfg.Workers = workersOverride
	}
	if forceOverride {
		cfg.Force = true
	}
	if deferPromotionFlag {
		cfg.DeferFinalPromotion = true
	}
	if pollIntervalFlag > 0 {
		cfg.PollInterval = pollIntervalFlag
	}
	if pollTimeoutFlag > 0 {
		cfg.PollTimeout = pollTimeoutFlag
	}
}

func logLoadedConfig(cfg *config.Config, mode string) {
	primaryPassSource := "not set"
	if cfg.PrimaryDB.Password != "" {
		primaryPassSource = "env var"
	} else if cfg.VaultEnabled && cfg.VaultPrimaryCredsPath != "" {
		primaryPassSource = "vault"
	}
	secondaryPassSource := "not set"
	if cfg.SecondaryDB.Password != "" {
		secondaryPassSource = "env var"
	} else if cfg.VaultEnabled && cfg.VaultSecondaryCredsPath != "" {
		secondaryPassSource = "vault"
	}

	logger.Log.Info("Final configuration in use",
		zap.String("mode", mode),
		zap.Strings("databases", cfg.Databases),
		zap.Strings("secondary_hosts", cfg.SecondaryHosts),
		zap.Int("workers", cfg.Workers),
		zap.Bool("force", cfg.Force),
		zap.String("shared_backup_path", cfg.SharedBackupPath),
		zap.String("local_backup_path", cfg.LocalBackupPath),
		zap.String("copy_destination_path", cfg.CopyDestinationPath),
		zap.String("rename_prefix", cfg.RenamePrefix), zap.String("rename_suffix", cfg.RenameSuffix),
		zap.Bool("restore_standby", cfg.RestoreStandby),
		zap.Int("retention_minutes", cfg.RetentionMinutes),
		zap.Bool("init_generate_new", cfg.InitGenerateNew),
		zap.String("init_reuse_backup_file", cfg.InitReuseBackupFile),
		zap.String("init_reuse_backup_dir", cfg.InitReuseBackupDir),
		zap.Duration("poll_interval", cfg.PollInterval), zap.Duration("poll_timeout", cfg.PollTimeout),
		zap.Bool("defer_final_promotion", cfg.DeferFinalPromotion),
		zap.String("primary_dialect", cfg.PrimaryDB.Dialect), zap.String("primary_host", cfg.PrimaryDB.Host),
		zap.Int("primary_port", cfg.PrimaryDB.Port), zap.String("primary_user", cfg.PrimaryDB.User),
		zap.String("primary_password_source", primaryPassSource),
		zap.String("secondary_dialect", cfg.SecondaryDB.Dialect), zap.Int("secondary_port", cfg.SecondaryDB.Port),
		zap.String("secondary_user", cfg.SecondaryDB.User),
		zap.String("secondary_password_source", secondaryPassSource),
		zap.Int("max_retries", cfg.MaxRetries), zap.Duration("retry_interval", cfg.RetryInterval),
		zap.Int("conn_pool_size", cfg.ConnPoolSize), zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		zap.Bool("json_logging", cfg.EnableJsonLogging), zap.Bool("enable_pprof", cfg.EnablePprof),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Bool("vault_enabled", cfg.VaultEnabled), zap.String("vault_addr", cfg.VaultAddr),
		zap.Bool("vault_token_present", cfg.VaultToken != ""),
	)
}

// loadCredentials loads role credentials from env vars or a secret manager.
func loadCredentials(
	ctx context.Context,
	dbCfg *config.DatabaseConfig,
	roleLabel string,
	secretPath string,
	usernameKey string,
	passwordKey string,
	secretManagers []secrets.SecretManager,
) (*secrets.Credentials, error) {
	log := logger.Log.With(zap.String("role", roleLabel))

	if dbCfg.Password != "" {
		log.Info("Using password directly from environment variable for role.")
		if dbCfg.User == "" {
			return nil, fmt.Errorf("password provided for %s role via env var, but username (%s_USER) is missing", roleLabel, strings.ToUpper(roleLabel))
		}
		return &secrets.Credentials{Username: dbCfg.User, Password: dbCfg.Password}, nil
	}
	log.Info("Password not found in direct environment variable for this role. Checking secret managers...")

	if secretPath != "" {
		if len(secretManagers) == 0 {
			log.Warn("Secret path is configured, but no secret managers are active/enabled.")
		}
		for _, sm := range secretManagers {
			log.Info("Attempting to retrieve credentials from configured secret manager",
				zap.String("manager_type", fmt.Sprintf("%T", sm)),
				zap.String("path_or_id", secretPath),
			)
			getCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			creds, err := sm.GetCredentials(getCtx, secretPath, usernameKey, passwordKey)
			cancel()

			if err == nil && creds != nil {
				log.Info("Successfully retrieved credentials from secret manager.")
				if creds.Password == "" {
					return nil, fmt.Errorf("retrieved credentials for %s from %T, but password field is empty", roleLabel, sm)
				}
				if creds.Username == "" {
					log.Warn("Username field empty in retrieved secret. Falling back to role config username.",
						zap.String("config_user", dbCfg.User))
					creds.Username = dbCfg.User
					if creds.Username == "" {
						return nil, fmt.Errorf("password retrieved for %s, but username is missing in both secret and role config (%s_USER)", roleLabel, strings.ToUpper(roleLabel))
					}
				}
				return creds, nil
			}
			log.Warn("Failed to retrieve credentials from secret manager. Trying next if available.",
				zap.String("manager_type", fmt.Sprintf("%T", sm)),
				zap.Error(err),
			)
		}
		log.Error("Failed to retrieve credentials from all configured/enabled secret managers for the specified path.", zap.String("path_or_id", secretPath))
	} else {
		log.Info("Secret path is not configured for this role. Cannot use secret managers.")
	}

	return nil, fmt.Errorf("could not load credentials for %s role; ensure %s_PASSWORD or Vault (VAULT_ENABLED=true plus the creds path) is configured", roleLabel, strings.ToUpper(roleLabel))
}

// connectDBWithRetry connects to one role with retry logic.
func connectDBWithRetry(
	ctx context.Context,
	dbCfg config.DatabaseConfig,
	host string,
	username string,
	password string,
	maxRetries int,
	retryInterval time.Duration,
	roleLabel string,
	metricsStore *metrics.Store,
) (*db.Connector, error) {
	gl := logger.GetGormLogger()
	var lastErr error

	dsn := buildDSN(dbCfg, host, username, password)
	if dsn == "" {
		err := fmt.Errorf("could not build DSN for role %s (unsupported dialect: %s)", roleLabel, dbCfg.Dialect)
		metricsStore.ErrorsTotal.WithLabelValues("connection", roleLabel).Inc()
		return nil, err
	}

	for i := 0; i <= maxRetries; i++ {
		attemptStartTime := time.Now()
		if i > 0 {
			logger.Log.Warn("Retrying role connection",
				zap.String("role", roleLabel),
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", maxRetries+1),
				zap.Duration("wait_interval", retryInterval),
				zap.NamedError("previous_error", lastErr))
			timer := time.NewTimer(retryInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				metricsStore.ErrorsTotal.WithLabelValues("connection_cancelled", roleLabel).Inc()
				return nil, fmt.Errorf("context cancelled while waiting to retry connection to role %s (attempt %d): %w; last error: %v", roleLabel, i+1, ctx.Err(), lastErr)
			}
		}

		logger.Log.Info("Attempting to connect",
			zap.String("role", roleLabel),
			zap.String("dialect", dbCfg.Dialect),
			zap.String("host", host),
			zap.Int("port", dbCfg.Port),
			zap.String("user", username),
			zap.Int("attempt", i+1))

		conn, err := db.New(dbCfg.Dialect, dsn, gl)
		if err != nil {
			lastErr = fmt.Errorf("connect attempt %d/%d failed for %s: %w", i+1, maxRetries+1, roleLabel, err)
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := conn.Ping(pingCtx)
		pingCancel()
		if pingErr != nil {
			lastErr = fmt.Errorf("ping attempt %d/%d failed for %s: %w", i+1, maxRetries+1, roleLabel, pingErr)
			_ = conn.Close()
			continue
		}

		logger.Log.Info("Role connection successful",
			zap.String("role", roleLabel),
			zap.Duration("connect_duration", time.Since(attemptStartTime)))
		return conn, nil
	}

	logger.Log.Error("Failed to connect to role after all retries",
		zap.String("role", roleLabel),
		zap.Int("attempts", maxRetries+1),
		zap.NamedError("final_error", lastErr))
	metricsStore.ErrorsTotal.WithLabelValues("connection_failed", roleLabel).Inc()
	return nil, fmt.Errorf("failed to connect to role %s (%s at %s:%d) after %d attempts: %w", roleLabel, dbCfg.Dialect, host, dbCfg.Port, maxRetries+1, lastErr)
}

// buildDSN builds the server-level Data Source Name for one role. Connections
// target the instance, not a user database; every statement names the
// database it operates on.
func buildDSN(cfg config.DatabaseConfig, host, username, password string) string {
	switch strings.ToLower(cfg.Dialect) {
	case "sqlserver":
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(username, password),
			Host:     fmt.Sprintf("%s:%d", host, cfg.Port),
			RawQuery: "database=master&dial+timeout=10",
		}
		return u.String()
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s connect_timeout=10",
			host, cfg.Port, username, password, strings.ToLower(cfg.SSLMode))
	default:
		logger.Log.Error("Cannot build DSN: Unsupported dialect", zap.String("dialect", cfg.Dialect))
		return ""
	}
}

// buildRole wires the engine adapters for one server role. SQL Server roles
// use the native agent subsystem; other dialects fall back to the in-process
// local engine whose definitions are mirrored into a sqlite store.
func buildRole(cfg *config.Config, name, dialect string, conn *db.Connector) (shipping.Role, error) {
	var jobEngine shipping.JobEngine
	if strings.ToLower(dialect) == "sqlserver" {
		jobEngine = engine.NewAgentEngine(conn, logger.Log)
	} else {
		var store *db.Connector
		if cfg.LocalJobStorePath != "" {
			storePath := fmt.Sprintf("%s.%s.db", cfg.LocalJobStorePath, name)
			var err error
			store, err = db.New("sqlite", storePath, logger.GetGormLogger())
			if err != nil {
				return shipping.Role{}, fmt.Errorf("failed to open local job store for role %s: %w", name, err)
			}
			if err := store.Optimize(1, 0); err != nil {
				logger.Log.Warn("Failed to tune local job store", zap.String("role", name), zap.Error(err))
			}
		}
		var localEngine *engine.LocalEngine
		var err error
		if store != nil {
			localEngine, err = engine.NewLocalEngine(store.DB, nil, logger.Log)
		} else {
			localEngine, err = engine.NewLocalEngine(nil, nil, logger.Log)
		}
		if err != nil {
			return shipping.Role{}, fmt.Errorf("failed to build local engine for role %s: %w", name, err)
		}
		jobEngine = localEngine
	}

	osFs := afero.NewOsFs()
	return shipping.Role{
		Name:    name,
		Server:  engine.NewSQLInstance(conn, logger.Log),
		Engine:  jobEngine,
		Paths:   platform.NewOSPaths(name, logger.Log),
		Seeder:  platform.NewSQLSeeder(conn, osFs, cfg.LocalBackupPath, logger.Log),
		Catalog: engine.NewSQLCatalog(conn, logger.Log),
	}, nil
}

func runConfigure(ctx context.Context, cfg *config.Config, primary shipping.Role,
	secondaries []shipping.Role, metricsStore *metrics.Store) ([]shipping.OutcomeRecord, error) {

	topology := shipping.ReplicationTopology{
		Databases:           cfg.Databases,
		SharedBackupPath:    cfg.SharedBackupPath,
		LocalBackupPath:     cfg.LocalBackupPath,
		CopyDestinationPath: cfg.CopyDestinationPath,
	}
	opts := shipping.ConfiguratorOptions{
		Force:            cfg.Force,
		RenamePrefix:     cfg.RenamePrefix,
		RenameSuffix:     cfg.RenameSuffix,
		RestoreStandby:   cfg.RestoreStandby,
		RetentionMinutes: cfg.RetentionMinutes,
		ProduceEnabled:   cfg.ProduceEnabled,
		TransportEnabled: cfg.TransportEnabled,
		ApplyEnabled:     cfg.ApplyEnabled,
		Workers:          cfg.Workers,
		Monitor: shipping.MonitorConfig{
			Server:                cfg.Monitor.Server,
			SecurityMode:          cfg.Monitor.SecurityMode,
			Credential:            cfg.Monitor.Credential,
			ThresholdAlertEnabled: cfg.Monitor.ThresholdAlertEnabled,
		},
		Init: shipping.InitializationRequest{
			GenerateNew:     cfg.InitGenerateNew,
			ReuseBackupFile: cfg.InitReuseBackupFile,
			ReuseBackupDir:  cfg.InitReuseBackupDir,
		},
		ProduceSchedule:   shipping.ScheduleSpec{SubdayType: shipping.SubdayMinutes, SubdayInterval: cfg.ProduceIntervalMinutes, Enabled: cfg.ProduceEnabled},
		TransportSchedule: shipping.ScheduleSpec{SubdayType: shipping.SubdayMinutes, SubdayInterval: cfg.TransportIntervalMinutes, Enabled: cfg.TransportEnabled},
		ApplySchedule:     shipping.ScheduleSpec{SubdayType: shipping.SubdayMinutes, SubdayInterval: cfg.ApplyIntervalMinutes, Enabled: cfg.ApplyEnabled},
	}

	configurator := shipping.NewTopologyConfigurator(topology, primary, secondaries, opts, logger.Log, metricsStore)
	return configurator.Configure(ctx)
}

func runRecover(ctx context.Context, cfg *config.Config, secondaries []shipping.Role,
	metricsStore *metrics.Store) []shipping.OutcomeRecord {

	target := recoverRoleFlag
	if target == "" {
		target = secondaries[0].Name
	}
	var role *shipping.Role
	for i := range secondaries {
		if secondaries[i].Name == target {
			role = &secondaries[i]
			break
		}
	}
	if role == nil {
		logger.Log.Fatal("Recover role is not one of the configured secondary hosts",
			zap.String("recover_role", target), zap.Strings("secondary_hosts", cfg.SecondaryHosts))
	}

	orch := shipping.NewRecoveryOrchestrator(*role, shipping.RecoveryOptions{
		Databases:           cfg.Databases,
		DeferFinalPromotion: cfg.DeferFinalPromotion,
		PollInterval:        cfg.PollInterval,
		PollTimeout:         cfg.PollTimeout,
	}, logger.Log, metricsStore)
	return orch.Recover(ctx)
}

// processResults logs every unit outcome and derives the process exit code:
// 0 all units succeeded, 3 every failure was an operator-input problem
// (configuration, precondition, not-replicated), 1 otherwise.
func processResults(mode string, records []shipping.OutcomeRecord, metricsStore *metrics.Store) (exitCode int) {
	successCount := 0
	operatorFailCount := 0
	engineFailCount := 0

	if len(records) == 0 {
		logger.Log.Warn("Run finished, but no units were processed.")
		return 0
	}

	for _, rec := range records {
		fields := []zap.Field{
			zap.String("primary_database", rec.PrimaryDatabase),
			zap.String("secondary_database", rec.SecondaryDatabase),
			zap.String("secondary_role", rec.SecondaryRole),
			zap.Duration("duration", rec.Duration),
			zap.String("comment", rec.Comment),
		}
		if rec.Err != nil {
			fields = append(fields,
				zap.String("class", string(rec.Class())),
				zap.NamedError("unit_error", rec.Err))
		}

		if rec.Result == shipping.ResultSuccess {
			successCount++
			logger.Log.Info("Unit SUCCEEDED.", fields...)
			continue
		}
		switch rec.Class() {
		case shipping.ClassConfiguration, shipping.ClassPrecondition, shipping.ClassNotReplicated, shipping.ClassInvalidState, shipping.ClassConflict:
			operatorFailCount++
			metricsStore.ErrorsTotal.WithLabelValues(string(rec.Class()), rec.PrimaryDatabase).Inc()
		default:
			engineFailCount++
			metricsStore.ErrorsTotal.WithLabelValues(string(rec.Class()), rec.PrimaryDatabase).Inc()
		}
		logger.Log.Error("Unit FAILED.", fields...)
	}

	logger.Log.Info("-------------------- Run Summary --------------------",
		zap.String("mode", mode),
		zap.Int("total_units", len(records)),
		zap.Int("units_successful", successCount),
		zap.Int("units_failed_operator_input", operatorFailCount),
		zap.Int("units_failed_engine", engineFailCount),
	)

	switch {
	case engineFailCount > 0:
		logger.Log.Error("Overall run: COMPLETED WITH ENGINE ERRORS.")
		return 1
	case operatorFailCount > 0:
		logger.Log.Warn("Overall run: COMPLETED, BUT SOME UNITS NEED OPERATOR ATTENTION.")
		return 3
	default:
		logger.Log.Info("Overall run: COMPLETED SUCCESSFULLY.")
		return 0
	}
}
