package shipping

import "context"

// InitializationKind tags the variants of an InitializationPlan.
type InitializationKind int

const (
	// InitNone skips seeding; the secondary database must already exist in
	// a recovery-pending state.
	InitNone InitializationKind = iota
	// InitGenerateNew produces a fresh base copy on the primary and applies
	// it on the secondary.
	InitGenerateNew
	// InitReuseExisting applies one specified existing base copy.
	InitReuseExisting
	// InitReuseFolder applies the base copies found in a folder.
	InitReuseFolder
	// InitPendingDecision means the strategy could not decide without
	// operator input; the caller must supply an explicit mode (or force
	// mode) and re-invoke. It is a decision point, not blocking I/O.
	InitPendingDecision
)

func (k InitializationKind) String() string {
	switch k {
	case InitNone:
		return "none"
	case InitGenerateNew:
		return "generate-new"
	case InitReuseExisting:
		return "reuse-existing"
	case InitReuseFolder:
		return "reuse-folder"
	case InitPendingDecision:
		return "pending-decision"
	default:
		return "invalid"
	}
}

// InitializationPlan is the resolved seeding decision for one secondary
// database. BackupPath is set for the reuse variants only.
type InitializationPlan struct {
	Kind       InitializationKind
	BackupPath string
}

// InitializationRequest carries the caller's requested seeding mode. At
// most one field may be set.
type InitializationRequest struct {
	GenerateNew     bool
	ReuseBackupFile string
	ReuseBackupDir  string
}

func (r InitializationRequest) modeCount() int {
	n := 0
	if r.GenerateNew {
		n++
	}
	if r.ReuseBackupFile != "" {
		n++
	}
	if r.ReuseBackupDir != "" {
		n++
	}
	return n
}

// ResolveInitialization decides how a secondary database is seeded before
// ongoing replication begins. paths must be the path service of the target
// (secondary) role; reuse paths are verified reachable from there.
// secondaryExists and restorePending describe the current state of the
// secondary database.
func ResolveInitialization(ctx context.Context, paths PathService, req InitializationRequest,
	secondaryExists, restorePending, force bool) (InitializationPlan, error) {

	if req.modeCount() > 1 {
		return InitializationPlan{}, newError(ClassConfiguration, "resolve-initialization",
			"conflicting initialization modes requested (generate-new=%v, reuse-file=%q, reuse-dir=%q)",
			req.GenerateNew, req.ReuseBackupFile, req.ReuseBackupDir)
	}

	switch {
	case req.GenerateNew:
		return InitializationPlan{Kind: InitGenerateNew}, nil

	case req.ReuseBackupFile != "":
		if err := checkReachable(ctx, paths, req.ReuseBackupFile); err != nil {
			return InitializationPlan{}, err
		}
		return InitializationPlan{Kind: InitReuseExisting, BackupPath: req.ReuseBackupFile}, nil

	case req.ReuseBackupDir != "":
		if err := checkReachable(ctx, paths, req.ReuseBackupDir); err != nil {
			return InitializationPlan{}, err
		}
		return InitializationPlan{Kind: InitReuseFolder, BackupPath: req.ReuseBackupDir}, nil
	}

	// No seeding mode requested.
	if secondaryExists {
		if !restorePending {
			return InitializationPlan{}, newError(ClassPrecondition, "resolve-initialization",
				"secondary database exists but is not in a recovery-pending state and no initialization mode was requested")
		}
		return InitializationPlan{Kind: InitNone}, nil
	}
	if force {
		return InitializationPlan{Kind: InitGenerateNew}, nil
	}
	return InitializationPlan{Kind: InitPendingDecision}, nil
}

func checkReachable(ctx context.Context, paths PathService, path string) error {
	ok, err := paths.Reachable(ctx, path)
	if err != nil {
		return wrapError(ClassEngine, "resolve-initialization", err)
	}
	if !ok {
		return newError(ClassPrecondition, "resolve-initialization",
			"backup path %q is not reachable from the target role", path)
	}
	return nil
}
