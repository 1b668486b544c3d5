package shipping

import (
	"context"
	"fmt"
	"sync"
)

// fakePaths answers reachability from a fixed set of known directories.
type fakePaths struct {
	mu       sync.Mutex
	existing map[string]bool
	statErr  error
	created  []string
}

func newFakePaths(existing ...string) *fakePaths {
	m := make(map[string]bool, len(existing))
	for _, p := range existing {
		m[p] = true
	}
	return &fakePaths{existing: m}
}

func (f *fakePaths) Reachable(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return false, f.statErr
	}
	return f.existing[path], nil
}

func (f *fakePaths) EnsureDirectory(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[path] = true
	f.created = append(f.created, path)
	return nil
}

// fakeJob is the stored state of one job inside fakeEngine.
type fakeJob struct {
	def      JobDefinition
	schedule ScheduleSpec
	outcome  JobOutcome
	// pollStates is consumed one state per PollStatus call; once exhausted
	// the job reports idle.
	pollStates []RunState
	started    int
}

// fakeEngine is an in-memory JobEngine that records every call so tests can
// assert both effects and call ordering.
type fakeEngine struct {
	mu    sync.Mutex
	jobs  map[string]*fakeJob
	calls []string

	existsErr error
	createErr error
	startErr  map[string]error
	pollErr   map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		jobs:     make(map[string]*fakeJob),
		startErr: make(map[string]error),
		pollErr:  make(map[string]error),
	}
}

func (f *fakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) addJob(name string, outcome JobOutcome, pollStates ...RunState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[name] = &fakeJob{
		def:        JobDefinition{Name: name, Enabled: true},
		outcome:    outcome,
		pollStates: pollStates,
	}
}

func (f *fakeEngine) JobExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exists:" + name)
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.jobs[name]
	return ok, nil
}

func (f *fakeEngine) CreateOrReplaceJob(ctx context.Context, def JobDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create:" + def.Name)
	if f.createErr != nil {
		return f.createErr
	}
	job, ok := f.jobs[def.Name]
	if !ok {
		job = &fakeJob{}
		f.jobs[def.Name] = job
	}
	job.def = def
	return nil
}

func (f *fakeEngine) CreateOrReplaceSchedule(ctx context.Context, jobName string, spec ScheduleSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("schedule:" + jobName)
	job, ok := f.jobs[jobName]
	if !ok {
		return fmt.Errorf("no such job %q", jobName)
	}
	job.schedule = spec
	return nil
}

func (f *fakeEngine) SetEnabled(ctx context.Context, jobName string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("enable:%s:%v", jobName, enabled))
	job, ok := f.jobs[jobName]
	if !ok {
		return fmt.Errorf("no such job %q", jobName)
	}
	job.def.Enabled = enabled
	return nil
}

func (f *fakeEngine) Start(ctx context.Context, jobName string) (RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start:" + jobName)
	if err := f.startErr[jobName]; err != nil {
		return RunHandle{}, err
	}
	job, ok := f.jobs[jobName]
	if !ok {
		return RunHandle{}, fmt.Errorf("no such job %q", jobName)
	}
	job.started++
	return RunHandle{JobName: jobName}, nil
}

func (f *fakeEngine) PollStatus(ctx context.Context, h RunHandle) (RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("poll:" + h.JobName)
	if err := f.pollErr[h.JobName]; err != nil {
		return RunStateUnknown, err
	}
	job, ok := f.jobs[h.JobName]
	if !ok {
		return RunStateUnknown, fmt.Errorf("no such job %q", h.JobName)
	}
	if len(job.pollStates) == 0 {
		return RunStateIdle, nil
	}
	state := job.pollStates[0]
	job.pollStates = job.pollStates[1:]
	return state, nil
}

func (f *fakeEngine) LastOutcome(ctx context.Context, jobName string) (JobOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("outcome:" + jobName)
	job, ok := f.jobs[jobName]
	if !ok {
		return OutcomeUnknown, fmt.Errorf("no such job %q", jobName)
	}
	return job.outcome, nil
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeEngine) jobEnabled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[name]
	return ok && job.def.Enabled
}

// fakeInstance serves database-level state from fixed maps.
type fakeInstance struct {
	mu             sync.Mutex
	databases      map[string]DatabaseState
	recoveryModels map[string]string
	links          []ReplicationLink
	promoted       []string

	existsErr  error
	promoteErr error
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		databases:      make(map[string]DatabaseState),
		recoveryModels: make(map[string]string),
	}
}

func (f *fakeInstance) addDatabase(name string, state DatabaseState, recoveryModel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.databases[name] = state
	f.recoveryModels[name] = recoveryModel
}

func (f *fakeInstance) DatabaseExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	state, ok := f.databases[name]
	return ok && state != StateAbsent, nil
}

func (f *fakeInstance) RecoveryModel(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	model, ok := f.recoveryModels[name]
	if !ok {
		return "", fmt.Errorf("no such database %q", name)
	}
	return model, nil
}

func (f *fakeInstance) DatabaseState(ctx context.Context, name string) (DatabaseState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.databases[name]
	if !ok {
		return StateAbsent, nil
	}
	return state, nil
}

func (f *fakeInstance) Promote(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.databases[name] = StateOnline
	f.promoted = append(f.promoted, name)
	return nil
}

func (f *fakeInstance) RegisterReplicationLink(ctx context.Context, link ReplicationLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link)
	return nil
}

// fakeSeeder records produce/apply calls.
type fakeSeeder struct {
	mu       sync.Mutex
	produced []string
	applied  []string

	produceErr error
	applyErr   error
}

func (f *fakeSeeder) ProduceBaseCopy(ctx context.Context, database string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.produceErr != nil {
		return "", f.produceErr
	}
	f.produced = append(f.produced, database)
	return "/backups/" + database + "/seed.bak", nil
}

func (f *fakeSeeder) Apply(ctx context.Context, artifact, targetDatabase string, mode RestoreMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, fmt.Sprintf("%s<-%s", targetDatabase, artifact))
	return nil
}

// fakeCatalog serves recovery entries by secondary database name.
type fakeCatalog struct {
	entries map[string]*RecoveryCatalogEntry
	err     error
	reads   int
}

func (f *fakeCatalog) ShippingEntry(ctx context.Context, database string) (*RecoveryCatalogEntry, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[database], nil
}
