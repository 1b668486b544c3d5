package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/db"
	"github.com/arwahdevops/logship/internal/shipping"
	"github.com/arwahdevops/logship/internal/utils"
)

// SQLInstance implements shipping.Instance for one server role. SQL Server
// gets the full database-level surface; PostgreSQL maps the same operations
// onto its server-level replication model (a standby replays WAL for the
// whole cluster, so state and promotion are cluster-wide).
type SQLInstance struct {
	conn   *db.Connector
	logger *zap.Logger
}

var _ shipping.Instance = (*SQLInstance)(nil)

func NewSQLInstance(conn *db.Connector, logger *zap.Logger) *SQLInstance {
	return &SQLInstance{
		conn:   conn,
		logger: logger.Named("instance").With(zap.String("dialect", conn.Dialect)),
	}
}

func (i *SQLInstance) DatabaseExists(ctx context.Context, database string) (bool, error) {
	var count int64
	var err error
	switch i.conn.Dialect {
	case "sqlserver":
		err = i.conn.DB.WithContext(ctx).
			Raw(`SELECT COUNT(*) FROM sys.databases WHERE name = ?`, database).
			Scan(&count).Error
	case "postgres":
		err = i.conn.DB.WithContext(ctx).
			Raw(`SELECT COUNT(*) FROM pg_database WHERE datname = ?`, database).
			Scan(&count).Error
	default:
		return false, fmt.Errorf("DatabaseExists: unsupported dialect %q", i.conn.Dialect)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up database %q: %w", database, err)
	}
	return count > 0, nil
}

func (i *SQLInstance) RecoveryModel(ctx context.Context, database string) (string, error) {
	switch i.conn.Dialect {
	case "sqlserver":
		var model []string
		err := i.conn.DB.WithContext(ctx).
			Raw(`SELECT recovery_model_desc FROM sys.databases WHERE name = ?`, database).
			Scan(&model).Error
		if err != nil {
			return "", fmt.Errorf("failed to read recovery model of %q: %w", database, err)
		}
		if len(model) == 0 {
			return "", fmt.Errorf("database %q not found while reading recovery model", database)
		}
		return model[0], nil
	case "postgres":
		// WAL covers every database; there is no per-database knob to check.
		return shipping.FullRecoveryModel, nil
	default:
		return "", fmt.Errorf("RecoveryModel: unsupported dialect %q", i.conn.Dialect)
	}
}

func (i *SQLInstance) DatabaseState(ctx context.Context, database string) (shipping.DatabaseState, error) {
	switch i.conn.Dialect {
	case "sqlserver":
		type row struct {
			StateDesc   string
			IsInStandby bool
		}
		var rows []row
		err := i.conn.DB.WithContext(ctx).
			Raw(`SELECT state_desc AS state_desc, is_in_standby AS is_in_standby
				FROM sys.databases WHERE name = ?`, database).
			Scan(&rows).Error
		if err != nil {
			return shipping.StateAbsent, fmt.Errorf("failed to read state of %q: %w", database, err)
		}
		if len(rows) == 0 {
			return shipping.StateAbsent, nil
		}
		switch {
		case rows[0].IsInStandby:
			return shipping.StateStandby, nil
		case rows[0].StateDesc == "RESTORING":
			return shipping.StateRestoring, nil
		default:
			return shipping.StateOnline, nil
		}
	case "postgres":
		exists, err := i.DatabaseExists(ctx, database)
		if err != nil {
			return shipping.StateAbsent, err
		}
		if !exists {
			return shipping.StateAbsent, nil
		}
		var inRecovery bool
		err = i.conn.DB.WithContext(ctx).
			Raw(`SELECT pg_is_in_recovery()`).Scan(&inRecovery).Error
		if err != nil {
			return shipping.StateAbsent, fmt.Errorf("failed to read recovery flag: %w", err)
		}
		if inRecovery {
			return shipping.StateRestoring, nil
		}
		return shipping.StateOnline, nil
	default:
		return shipping.StateAbsent, fmt.Errorf("DatabaseState: unsupported dialect %q", i.conn.Dialect)
	}
}

// Promote brings a replicated database online for independent use. This is a
// one-way transition; the engine offers no way back into the restore chain
// short of re-seeding from scratch.
func (i *SQLInstance) Promote(ctx context.Context, database string) error {
	i.logger.Info("Promoting database out of replication", zap.String("database", database))
	switch i.conn.Dialect {
	case "sqlserver":
		stmt := fmt.Sprintf(`RESTORE DATABASE %s WITH RECOVERY`, utils.QuoteIdentifier(database, i.conn.Dialect))
		if err := i.conn.DB.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to promote database %q: %w", database, err)
		}
		return nil
	case "postgres":
		// Promotes the whole standby cluster; pg_promote waits for completion.
		var promoted bool
		err := i.conn.DB.WithContext(ctx).
			Raw(`SELECT pg_promote(true)`).Scan(&promoted).Error
		if err != nil {
			return fmt.Errorf("failed to promote standby: %w", err)
		}
		if !promoted {
			return fmt.Errorf("standby did not finish promotion in time")
		}
		return nil
	default:
		return fmt.Errorf("Promote: unsupported dialect %q", i.conn.Dialect)
	}
}

// RegisterReplicationLink records a primary/secondary pairing so later
// recovery runs can find the jobs and paths that serve a database. SQL Server
// keeps this in its own log shipping catalog; for PostgreSQL the record goes
// into a small schema owned by this tool.
func (i *SQLInstance) RegisterReplicationLink(ctx context.Context, link shipping.ReplicationLink) error {
	i.logger.Info("Registering replication link",
		zap.String("primary_database", link.PrimaryDatabase),
		zap.String("secondary_role", link.SecondaryRole),
		zap.String("secondary_database", link.SecondaryDatabase),
	)
	switch i.conn.Dialect {
	case "sqlserver":
		threshold := 0
		if link.Monitor.ThresholdAlertEnabled {
			threshold = 1
		}
		tx := i.conn.DB.WithContext(ctx)
		err := tx.Exec(`EXEC master.dbo.sp_add_log_shipping_primary_database
			@database = ?, @backup_directory = ?, @backup_share = ?,
			@backup_retention_period = ?, @monitor_server = ?,
			@threshold_alert_enabled = ?, @overwrite = 1`,
			link.PrimaryDatabase, link.SharedBackupPath, link.SharedBackupPath,
			link.RetentionMinutes, link.Monitor.Server, threshold).Error
		if err != nil {
			return fmt.Errorf("failed to register primary database %q: %w", link.PrimaryDatabase, err)
		}
		err = tx.Exec(`EXEC master.dbo.sp_add_log_shipping_primary_secondary
			@primary_database = ?, @secondary_server = ?, @secondary_database = ?`,
			link.PrimaryDatabase, link.SecondaryRole, link.SecondaryDatabase).Error
		if err != nil {
			return fmt.Errorf("failed to register secondary pairing for %q: %w", link.PrimaryDatabase, err)
		}
		return nil
	case "postgres":
		tx := i.conn.DB.WithContext(ctx)
		if err := tx.Exec(`CREATE SCHEMA IF NOT EXISTS logship`).Error; err != nil {
			return fmt.Errorf("failed to ensure catalog schema: %w", err)
		}
		err := tx.Exec(`CREATE TABLE IF NOT EXISTS logship.replication_link (
			primary_role       text NOT NULL DEFAULT '',
			primary_database   text NOT NULL,
			secondary_role     text NOT NULL,
			secondary_database text NOT NULL,
			source_path        text NOT NULL,
			destination_path   text NOT NULL,
			retention_minutes  integer NOT NULL,
			updated_at         timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (primary_database, secondary_role)
		)`).Error
		if err != nil {
			return fmt.Errorf("failed to ensure catalog table: %w", err)
		}
		err = tx.Exec(`INSERT INTO logship.replication_link
			(primary_role, primary_database, secondary_role, secondary_database, source_path, destination_path, retention_minutes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (primary_database, secondary_role) DO UPDATE SET
				secondary_database = EXCLUDED.secondary_database,
				source_path        = EXCLUDED.source_path,
				destination_path   = EXCLUDED.destination_path,
				retention_minutes  = EXCLUDED.retention_minutes,
				updated_at         = now()`,
			link.PrimaryRole, link.PrimaryDatabase, link.SecondaryRole, link.SecondaryDatabase,
			link.SharedBackupPath, link.CopyDestinationPath, link.RetentionMinutes).Error
		if err != nil {
			return fmt.Errorf("failed to upsert replication link for %q: %w", link.PrimaryDatabase, err)
		}
		return nil
	default:
		return fmt.Errorf("RegisterReplicationLink: unsupported dialect %q", i.conn.Dialect)
	}
}
