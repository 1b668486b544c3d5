package shipping

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporterOrdering(t *testing.T) {
	r := NewReporter()
	r.Append(OutcomeRecord{SecondaryRole: "db-dr2", PrimaryDatabase: "sales", Result: ResultSuccess})
	r.Append(OutcomeRecord{SecondaryRole: "db-dr1", PrimaryDatabase: "sales", Result: ResultFailed})
	r.Append(OutcomeRecord{SecondaryRole: "db-dr1", PrimaryDatabase: "billing", Result: ResultSuccess})

	records := r.Records()
	assert.Equal(t, "db-dr1", records[0].SecondaryRole)
	assert.Equal(t, "billing", records[0].PrimaryDatabase)
	assert.Equal(t, "db-dr1", records[1].SecondaryRole)
	assert.Equal(t, "sales", records[1].PrimaryDatabase)
	assert.Equal(t, "db-dr2", records[2].SecondaryRole)
	assert.Equal(t, 1, r.FailedCount())
}

func TestReporterConcurrentAppends(t *testing.T) {
	r := NewReporter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Append(OutcomeRecord{Result: ResultSuccess})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Records(), 50)
}

func TestOutcomeClass(t *testing.T) {
	ok := OutcomeRecord{Result: ResultSuccess}
	assert.Equal(t, Class(""), ok.Class())

	classified := OutcomeRecord{
		Result: ResultFailed,
		Err:    newError(ClassPrecondition, "check", "boom"),
	}
	assert.Equal(t, ClassPrecondition, classified.Class())

	plain := OutcomeRecord{Result: ResultFailed, Err: errors.New("raw")}
	assert.Equal(t, ClassEngine, plain.Class())
}

func TestClassifyPreservesFirstClass(t *testing.T) {
	inner := newError(ClassTimeout, "poll-job-status", "gave up")
	wrapped := wrapError(ClassEngine, "drain-job", inner)
	assert.Equal(t, ClassTimeout, Classify(wrapped))
}
