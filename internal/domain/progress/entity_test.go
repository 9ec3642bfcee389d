package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

func TestEnrollment_Apply(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEnrollment("enr-1", shared.LearnerID("learner-1"), "go-101", t0)
	assert.Equal(t, StatusInProgress, e.Status)
	assert.Equal(t, shared.MinPercent, e.ProgressPercent)

	steps := []struct {
		completed, total int
		percent          shared.Percent
		status           Status
		transition       Transition
		changed          bool
	}{
		{1, 3, 33, StatusInProgress, TransitionNone, true},
		{1, 3, 33, StatusInProgress, TransitionNone, false},
		{2, 3, 67, StatusInProgress, TransitionNone, true},
		{3, 3, 100, StatusCompleted, TransitionCompleted, true},
		{3, 3, 100, StatusCompleted, TransitionNone, false},
		{2, 3, 67, StatusInProgress, TransitionReopened, true},
	}

	for i, s := range steps {
		now := t0.Add(time.Duration(i+1) * time.Minute)
		before := e.UpdatedAt

		transition, changed := e.Apply(s.completed, s.total, now)

		assert.Equal(t, s.transition, transition, "step %d", i)
		assert.Equal(t, s.changed, changed, "step %d", i)
		assert.Equal(t, s.percent, e.ProgressPercent, "step %d", i)
		assert.Equal(t, s.status, e.Status, "step %d", i)
		if changed {
			assert.Equal(t, now, e.UpdatedAt, "step %d", i)
		} else {
			assert.Equal(t, before, e.UpdatedAt, "step %d", i)
		}
	}
}

func TestEnrollment_ApplyEmptyCourseNeverCompletes(t *testing.T) {
	e := NewEnrollment("enr-1", shared.LearnerID("learner-1"), "empty", time.Now())

	transition, changed := e.Apply(0, 0, time.Now())
	assert.False(t, changed)
	assert.Equal(t, TransitionNone, transition)
	assert.Equal(t, StatusInProgress, e.Status)

	// Stray completions against a course that lost its items still count as zero.
	_, changed = e.Apply(4, 0, time.Now())
	assert.False(t, changed)
	assert.Equal(t, shared.MinPercent, e.ProgressPercent)
}

func TestEnrollment_Claim(t *testing.T) {
	e := NewEnrollment("enr-1", shared.LearnerID("learner-1"), "go-101", time.Now())
	claim := e.Claim()
	assert.Equal(t, "enr-1", claim.EnrollmentID)
	assert.False(t, claim.Completed)

	e.Apply(1, 1, time.Now())
	assert.True(t, e.Claim().Completed)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusCompleted, StatusFor(shared.MaxPercent))
	assert.Equal(t, StatusInProgress, StatusFor(99))
	assert.True(t, StatusCompleted.IsValid())
	assert.False(t, Status("DROPPED").IsValid())
	assert.Equal(t, "reopened", TransitionReopened.String())
}
