package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arwahdevops/logship/internal/shipping"
)

// JobRunner executes the command of a locally-managed job. A nil runner
// makes every run succeed immediately, which is what tests and dry runs want.
type JobRunner func(ctx context.Context, command string) error

// localJobRecord is the persisted shape of a locally-managed job. The store
// survives restarts so a later recovery run still finds the jobs it needs to
// drain and disable.
type localJobRecord struct {
	Name             string `gorm:"primaryKey"`
	Command          string
	RetentionMinutes int
	Enabled          bool
	ScheduleName     string
	LastOutcome      int
	UpdatedAt        time.Time
}

func (localJobRecord) TableName() string { return "local_jobs" }

type localJobState struct {
	def      shipping.JobDefinition
	schedule shipping.ScheduleSpec
	running  bool
	outcome  shipping.JobOutcome
}

// LocalEngine is an in-process shipping.JobEngine for roles without an agent
// subsystem (PostgreSQL roles, and tests). Jobs run through the configured
// JobRunner; definitions are mirrored into an optional gorm store.
type LocalEngine struct {
	mu     sync.Mutex
	jobs   map[string]*localJobState
	store  *gorm.DB
	runner JobRunner
	logger *zap.Logger
}

var _ shipping.JobEngine = (*LocalEngine)(nil)

// NewLocalEngine builds a local engine. store may be nil for a purely
// in-memory engine; runner may be nil to make every run a no-op success.
func NewLocalEngine(store *gorm.DB, runner JobRunner, logger *zap.Logger) (*LocalEngine, error) {
	e := &LocalEngine{
		jobs:   make(map[string]*localJobState),
		store:  store,
		runner: runner,
		logger: logger.Named("local-engine"),
	}
	if store != nil {
		if err := store.AutoMigrate(&localJobRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate local job store: %w", err)
		}
		var records []localJobRecord
		if err := store.Find(&records).Error; err != nil {
			return nil, fmt.Errorf("failed to load local job store: %w", err)
		}
		for _, rec := range records {
			e.jobs[rec.Name] = &localJobState{
				def: shipping.JobDefinition{
					Name:             rec.Name,
					Command:          rec.Command,
					RetentionMinutes: rec.RetentionMinutes,
					Enabled:          rec.Enabled,
				},
				schedule: shipping.ScheduleSpec{Name: rec.ScheduleName},
				outcome:  shipping.JobOutcome(rec.LastOutcome),
			}
		}
		e.logger.Info("Loaded local job store", zap.Int("jobs", len(records)))
	}
	return e, nil
}

func (e *LocalEngine) persist(st *localJobState) error {
	if e.store == nil {
		return nil
	}
	rec := localJobRecord{
		Name:             st.def.Name,
		Command:          st.def.Command,
		RetentionMinutes: st.def.RetentionMinutes,
		Enabled:          st.def.Enabled,
		ScheduleName:     st.schedule.Name,
		LastOutcome:      int(st.outcome),
		UpdatedAt:        time.Now(),
	}
	if err := e.store.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to persist local job %q: %w", st.def.Name, err)
	}
	return nil
}

func (e *LocalEngine) JobExists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.jobs[name]
	return ok, nil
}

func (e *LocalEngine) CreateOrReplaceJob(ctx context.Context, def shipping.JobDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.jobs[def.Name]
	if !ok {
		st = &localJobState{}
		e.jobs[def.Name] = st
	}
	st.def = def
	e.logger.Debug("Local job stored", zap.String("job", def.Name), zap.Bool("replaced", ok))
	return e.persist(st)
}

func (e *LocalEngine) CreateOrReplaceSchedule(ctx context.Context, jobName string, spec shipping.ScheduleSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.jobs[jobName]
	if !ok {
		return fmt.Errorf("cannot schedule unknown local job %q", jobName)
	}
	st.schedule = spec
	return e.persist(st)
}

func (e *LocalEngine) SetEnabled(ctx context.Context, jobName string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.jobs[jobName]
	if !ok {
		return fmt.Errorf("cannot update unknown local job %q", jobName)
	}
	st.def.Enabled = enabled
	return e.persist(st)
}

// Start launches the job's command in the background. PollStatus observes
// the run; the goroutine records the outcome when the runner returns.
func (e *LocalEngine) Start(ctx context.Context, jobName string) (shipping.RunHandle, error) {
	e.mu.Lock()
	st, ok := e.jobs[jobName]
	if !ok {
		e.mu.Unlock()
		return shipping.RunHandle{}, fmt.Errorf("cannot start unknown local job %q", jobName)
	}
	if st.running {
		e.mu.Unlock()
		return shipping.RunHandle{JobName: jobName}, nil
	}
	st.running = true
	command := st.def.Command
	e.mu.Unlock()

	go func() {
		var err error
		if e.runner != nil {
			err = e.runner(ctx, command)
		}
		e.mu.Lock()
		st.running = false
		if err != nil {
			st.outcome = shipping.OutcomeFailed
			e.logger.Warn("Local job run failed", zap.String("job", jobName), zap.Error(err))
		} else {
			st.outcome = shipping.OutcomeSucceeded
		}
		if perr := e.persist(st); perr != nil {
			e.logger.Warn("Failed to persist local job outcome", zap.String("job", jobName), zap.Error(perr))
		}
		e.mu.Unlock()
	}()

	return shipping.RunHandle{JobName: jobName}, nil
}

func (e *LocalEngine) PollStatus(ctx context.Context, h shipping.RunHandle) (shipping.RunState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.jobs[h.JobName]
	if !ok {
		return shipping.RunStateUnknown, fmt.Errorf("cannot poll unknown local job %q", h.JobName)
	}
	if st.running {
		return shipping.RunStateRunning, nil
	}
	return shipping.RunStateIdle, nil
}

func (e *LocalEngine) LastOutcome(ctx context.Context, jobName string) (shipping.JobOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.jobs[jobName]
	if !ok {
		return shipping.OutcomeUnknown, fmt.Errorf("cannot inspect unknown local job %q", jobName)
	}
	return st.outcome, nil
}
