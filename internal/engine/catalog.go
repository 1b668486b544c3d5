package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/db"
	"github.com/arwahdevops/logship/internal/shipping"
)

// SQLCatalog reads the persisted replication catalog on a secondary role.
// The catalog is authoritative and read-only for this tool: SQL Server's log
// shipping tables are written by the engine's own procedures, and the
// PostgreSQL link table is written on the primary at configure time.
type SQLCatalog struct {
	conn   *db.Connector
	logger *zap.Logger
}

var _ shipping.Catalog = (*SQLCatalog)(nil)

func NewSQLCatalog(conn *db.Connector, logger *zap.Logger) *SQLCatalog {
	return &SQLCatalog{
		conn:   conn,
		logger: logger.Named("catalog").With(zap.String("dialect", conn.Dialect)),
	}
}

type catalogRow struct {
	PrimaryRole       string
	PrimaryDatabase   string
	SecondaryDatabase string
	SourcePath        string
	DestinationPath   string
	LastCopiedFile    string
	LastRestoredFile  string
	TransportJobName  string
	ApplyJobName      string
}

// ShippingEntry returns the catalog record for one secondary database, or
// (nil, nil) when the database is not replicated.
func (c *SQLCatalog) ShippingEntry(ctx context.Context, database string) (*shipping.RecoveryCatalogEntry, error) {
	var rows []catalogRow
	var err error
	switch c.conn.Dialect {
	case "sqlserver":
		err = c.conn.DB.WithContext(ctx).Raw(`SELECT
				s.primary_server                            AS primary_role,
				s.primary_database                          AS primary_database,
				sd.secondary_database                       AS secondary_database,
				s.backup_source_directory                   AS source_path,
				s.backup_destination_directory              AS destination_path,
				ISNULL(s.last_copied_file, '')              AS last_copied_file,
				ISNULL(sd.last_restored_file, '')           AS last_restored_file,
				cj.name                                     AS transport_job_name,
				rj.name                                     AS apply_job_name
			FROM msdb.dbo.log_shipping_secondary s
			JOIN msdb.dbo.log_shipping_secondary_databases sd
				ON sd.secondary_id = s.secondary_id
			JOIN msdb.dbo.sysjobs cj ON cj.job_id = s.copy_job_id
			JOIN msdb.dbo.sysjobs rj ON rj.job_id = s.restore_job_id
			WHERE sd.secondary_database = ?`, database).
			Scan(&rows).Error
	case "postgres":
		err = c.conn.DB.WithContext(ctx).Raw(`SELECT
				primary_role       AS primary_role,
				primary_database   AS primary_database,
				secondary_database AS secondary_database,
				source_path        AS source_path,
				destination_path   AS destination_path,
				''                 AS last_copied_file,
				''                 AS last_restored_file,
				''                 AS transport_job_name,
				''                 AS apply_job_name
			FROM logship.replication_link
			WHERE secondary_database = ?`, database).
			Scan(&rows).Error
	default:
		return nil, fmt.Errorf("ShippingEntry: unsupported dialect %q", c.conn.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read replication catalog for %q: %w", database, err)
	}
	if len(rows) == 0 {
		c.logger.Debug("No replication catalog entry", zap.String("database", database))
		return nil, nil
	}

	row := rows[0]
	entry := &shipping.RecoveryCatalogEntry{
		PrimaryRole:       row.PrimaryRole,
		PrimaryDatabase:   row.PrimaryDatabase,
		SecondaryDatabase: row.SecondaryDatabase,
		SourcePath:        row.SourcePath,
		DestinationPath:   row.DestinationPath,
		LastCopiedFile:    row.LastCopiedFile,
		LastRestoredFile:  row.LastRestoredFile,
		TransportJobName:  row.TransportJobName,
		ApplyJobName:      row.ApplyJobName,
	}
	// The postgres link table stores no job ids; fall back to the naming
	// convention the configurator registers jobs under.
	if entry.TransportJobName == "" {
		entry.TransportJobName = fmt.Sprintf("LSCopy_%s_%s", entry.PrimaryRole, entry.PrimaryDatabase)
	}
	if entry.ApplyJobName == "" {
		entry.ApplyJobName = fmt.Sprintf("LSRestore_%s_%s", entry.PrimaryRole, entry.PrimaryDatabase)
	}
	return entry, nil
}
