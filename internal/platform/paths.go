package platform

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/shipping"
)

// FsPaths implements shipping.PathService over an afero filesystem. The
// orchestrators probe share paths as seen from a role's own mount of the
// backup share, so the filesystem handed in here must be the one that role
// sees. Production uses the OS filesystem; tests use an in-memory one.
type FsPaths struct {
	fs     afero.Fs
	role   string
	logger *zap.Logger
}

var _ shipping.PathService = (*FsPaths)(nil)

func NewPaths(fs afero.Fs, role string, logger *zap.Logger) *FsPaths {
	return &FsPaths{
		fs:     fs,
		role:   role,
		logger: logger.Named("paths").With(zap.String("role", role)),
	}
}

// NewOSPaths is the production constructor.
func NewOSPaths(role string, logger *zap.Logger) *FsPaths {
	return NewPaths(afero.NewOsFs(), role, logger)
}

// Reachable reports whether path exists on this role's view of the share.
// It covers both share directories and individual backup files; a missing
// path is (false, nil), not an error, and callers turn that into their own
// precondition failure.
func (p *FsPaths) Reachable(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := p.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			p.logger.Debug("Path not reachable", zap.String("path", path))
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return true, nil
}

// EnsureDirectory creates path (and parents) if missing.
func (p *FsPaths) EnsureDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", path, err)
	}
	p.logger.Debug("Directory ensured", zap.String("path", path))
	return nil
}
