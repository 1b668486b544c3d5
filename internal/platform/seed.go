package platform

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/db"
	"github.com/arwahdevops/logship/internal/shipping"
	"github.com/arwahdevops/logship/internal/utils"
)

// SQLSeeder implements shipping.Seeder with native BACKUP/RESTORE statements.
// Only SQL Server roles support engine-driven seeding; PostgreSQL secondaries
// are seeded out of band (pg_basebackup) before this tool runs.
type SQLSeeder struct {
	conn      *db.Connector
	fs        afero.Fs
	backupDir string
	logger    *zap.Logger
}

var _ shipping.Seeder = (*SQLSeeder)(nil)

func NewSQLSeeder(conn *db.Connector, fs afero.Fs, backupDir string, logger *zap.Logger) *SQLSeeder {
	return &SQLSeeder{
		conn:      conn,
		fs:        fs,
		backupDir: backupDir,
		logger:    logger.Named("seeder").With(zap.String("dialect", conn.Dialect)),
	}
}

// ProduceBaseCopy takes a fresh full backup of database into the configured
// backup directory and returns the backup file path.
func (s *SQLSeeder) ProduceBaseCopy(ctx context.Context, database string) (string, error) {
	switch s.conn.Dialect {
	case "sqlserver":
		file := path.Join(s.backupDir, fmt.Sprintf("%s_seed_%s.bak", database, time.Now().UTC().Format("20060102150405")))
		s.logger.Info("Producing base copy",
			zap.String("database", database), zap.String("file", file))
		stmt := fmt.Sprintf(`BACKUP DATABASE %s TO DISK = ? WITH INIT, COMPRESSION`,
			utils.QuoteIdentifier(database, s.conn.Dialect))
		if err := s.conn.DB.WithContext(ctx).Exec(stmt, file).Error; err != nil {
			return "", fmt.Errorf("failed to back up database %q: %w", database, err)
		}
		return file, nil
	default:
		return "", fmt.Errorf("ProduceBaseCopy: seeding is not supported for dialect %q", s.conn.Dialect)
	}
}

// Apply restores artifact onto targetDatabase, leaving it restoring or in
// standby per mode. A directory artifact means "newest backup file in this
// folder".
func (s *SQLSeeder) Apply(ctx context.Context, artifact, targetDatabase string, mode shipping.RestoreMode) error {
	switch s.conn.Dialect {
	case "sqlserver":
		file, err := s.resolveArtifact(artifact)
		if err != nil {
			return err
		}
		s.logger.Info("Applying base copy",
			zap.String("target_database", targetDatabase),
			zap.String("file", file),
			zap.Bool("standby", mode == shipping.RestoreStandby))

		var stmt string
		var args []interface{}
		if mode == shipping.RestoreStandby {
			undo := path.Join(s.backupDir, targetDatabase+"_undo.dat")
			stmt = fmt.Sprintf(`RESTORE DATABASE %s FROM DISK = ? WITH STANDBY = ?, REPLACE`,
				utils.QuoteIdentifier(targetDatabase, s.conn.Dialect))
			args = []interface{}{file, undo}
		} else {
			stmt = fmt.Sprintf(`RESTORE DATABASE %s FROM DISK = ? WITH NORECOVERY, REPLACE`,
				utils.QuoteIdentifier(targetDatabase, s.conn.Dialect))
			args = []interface{}{file}
		}
		if err := s.conn.DB.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
			return fmt.Errorf("failed to restore %q onto %q: %w", file, targetDatabase, err)
		}
		return nil
	default:
		return fmt.Errorf("Apply: seeding is not supported for dialect %q", s.conn.Dialect)
	}
}

// resolveArtifact maps a directory artifact to its newest .bak file; a file
// artifact passes through unchanged.
func (s *SQLSeeder) resolveArtifact(artifact string) (string, error) {
	info, err := s.fs.Stat(artifact)
	if err != nil {
		return "", fmt.Errorf("failed to stat backup artifact %q: %w", artifact, err)
	}
	if !info.IsDir() {
		return artifact, nil
	}

	entries, err := afero.ReadDir(s.fs, artifact)
	if err != nil {
		return "", fmt.Errorf("failed to list backup folder %q: %w", artifact, err)
	}
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".bak") {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) == 0 {
		return "", fmt.Errorf("backup folder %q contains no .bak files", artifact)
	}
	// Backup file names embed a sortable timestamp, so lexical order is
	// chronological order.
	sort.Strings(backups)
	newest := path.Join(artifact, backups[len(backups)-1])
	s.logger.Debug("Resolved backup folder to newest file",
		zap.String("folder", artifact), zap.String("file", newest))
	return newest, nil
}
