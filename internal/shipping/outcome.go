package shipping

import (
	"sort"
	"sync"
	"time"
)

// Result is the final verdict for one processed unit.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
)

// OutcomeRecord is the externally visible result of processing one
// (secondary role x database) unit. Records are append-only; a batch never
// aborts globally on a single unit's failure, so callers always receive one
// record per attempted unit.
type OutcomeRecord struct {
	PrimaryRole       string
	SecondaryRole     string
	PrimaryDatabase   string
	SecondaryDatabase string
	Result            Result
	Comment           string
	Err               error
	Duration          time.Duration
}

// Class reports the failure class of the record, or "" on success.
func (r OutcomeRecord) Class() Class {
	if r.Result == ResultSuccess {
		return ""
	}
	return Classify(r.Err)
}

// Reporter accumulates outcome records. Safe for concurrent appends from
// the configurator's worker pool.
type Reporter struct {
	mu      sync.Mutex
	records []OutcomeRecord
}

func NewReporter() *Reporter { return &Reporter{} }

func (r *Reporter) Append(rec OutcomeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a deterministically ordered copy of the accumulated
// batch, sorted by secondary role then primary database.
func (r *Reporter) Records() []OutcomeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OutcomeRecord, len(r.records))
	copy(out, r.records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SecondaryRole != out[j].SecondaryRole {
			return out[i].SecondaryRole < out[j].SecondaryRole
		}
		return out[i].PrimaryDatabase < out[j].PrimaryDatabase
	})
	return out
}

// FailedCount reports how many accumulated records failed.
func (r *Reporter) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Result == ResultFailed {
			n++
		}
	}
	return n
}
