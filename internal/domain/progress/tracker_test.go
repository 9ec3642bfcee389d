package progress_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-academy/pkg/certcode"
)

const learner = shared.LearnerID("learner-1")

type fixture struct {
	store   *memory.Store
	tracker *progress.Tracker
	course  string
	items   []string
}

func newFixture(t *testing.T, itemCount int) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	courseID := uuid.NewString()
	require.NoError(t, store.SaveCourse(ctx, &course.Course{ID: courseID, Title: "Go basics"}))

	items := make([]string, itemCount)
	for i := range items {
		items[i] = uuid.NewString()
		require.NoError(t, store.PublishItem(ctx, &course.ContentItem{
			ID: items[i], CourseID: courseID, Position: i + 1, Kind: course.KindModule, Title: fmt.Sprintf("Lesson %d", i+1),
		}))
	}

	require.NoError(t, store.WithinTx(ctx, func(tx progress.Tx) error {
		_, _, err := tx.Enrollments().CreateIfAbsent(ctx, progress.NewEnrollment(uuid.NewString(), learner, courseID, time.Now().UTC()))
		return err
	}))

	issuer := certificate.NewIssuer(certcode.New(), uuid.NewString, nil)
	tracker := progress.NewTracker(progress.NewAggregator(issuer, nil), uuid.NewString, nil)
	return &fixture{store: store, tracker: tracker, course: courseID, items: items}
}

func (f *fixture) toggle(t *testing.T, itemID string, completed bool) *progress.ToggleOutcome {
	t.Helper()
	var out *progress.ToggleOutcome
	require.NoError(t, f.store.WithinTx(context.Background(), func(tx progress.Tx) error {
		var err error
		out, err = f.tracker.SetCompletion(context.Background(), tx, learner, itemID, completed)
		return err
	}))
	return out
}

func (f *fixture) certificate(t *testing.T, enrollmentID string) *certificate.Certificate {
	t.Helper()
	var cert *certificate.Certificate
	err := f.store.ReadOnly(context.Background(), func(tx progress.Tx) error {
		var err error
		cert, err = tx.Certificates().GetByEnrollment(context.Background(), enrollmentID)
		return err
	})
	if shared.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return cert
}

func TestTracker_ThreeItemScenario(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.items[0], f.items[1], f.items[2]

	f.toggle(t, a, true)
	out := f.toggle(t, b, true)
	assert.Equal(t, shared.Percent(67), out.Enrollment.ProgressPercent)
	assert.Equal(t, progress.StatusInProgress, out.Enrollment.Status)
	assert.Nil(t, f.certificate(t, out.Enrollment.ID))

	out = f.toggle(t, c, true)
	assert.Equal(t, shared.MaxPercent, out.Enrollment.ProgressPercent)
	assert.Equal(t, progress.StatusCompleted, out.Enrollment.Status)
	assert.Equal(t, progress.TransitionCompleted, out.Recomputation.Transition)
	require.True(t, out.CertificateIssued())
	issued := out.Recomputation.Certificate
	_, ok := certcode.Validate(issued.Code)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), issued.IssuedAt, 5*time.Second)

	out = f.toggle(t, a, false)
	assert.Equal(t, shared.Percent(67), out.Enrollment.ProgressPercent)
	assert.Equal(t, progress.StatusInProgress, out.Enrollment.Status)
	assert.Equal(t, progress.TransitionReopened, out.Recomputation.Transition)

	kept := f.certificate(t, out.Enrollment.ID)
	require.NotNil(t, kept)
	assert.Equal(t, issued.Code, kept.Code)
	assert.Equal(t, issued.IssuedAt, kept.IssuedAt)

	// Completing again reuses the permanent certificate.
	out = f.toggle(t, a, true)
	assert.Equal(t, progress.TransitionCompleted, out.Recomputation.Transition)
	assert.False(t, out.CertificateIssued())
	assert.Equal(t, issued.Code, out.Recomputation.Certificate.Code)
	assert.Equal(t, 1, f.store.Stats().Certificates)
}

func TestTracker_IdempotentToggle(t *testing.T) {
	f := newFixture(t, 2)

	first := f.toggle(t, f.items[0], true)
	require.True(t, first.Changed)
	updatedAt := first.Enrollment.UpdatedAt
	recordAt := first.Record.UpdatedAt

	second := f.toggle(t, f.items[0], true)
	assert.False(t, second.Changed)
	assert.Nil(t, second.Recomputation)
	assert.Equal(t, updatedAt, second.Enrollment.UpdatedAt)
	assert.Equal(t, recordAt, second.Record.UpdatedAt)
	assert.Equal(t, first.Record.ID, second.Record.ID)
}

func TestTracker_UncompletingMissingRecordIsNoop(t *testing.T) {
	f := newFixture(t, 2)

	out := f.toggle(t, f.items[1], false)
	assert.False(t, out.Changed)
	assert.False(t, out.Record.Completed)
	assert.Equal(t, 0, f.store.Stats().Completions)
}

func TestTracker_SingleRecordPerItem(t *testing.T) {
	f := newFixture(t, 1)

	on := f.toggle(t, f.items[0], true)
	off := f.toggle(t, f.items[0], false)
	assert.Equal(t, on.Record.ID, off.Record.ID)
	assert.Equal(t, 1, f.store.Stats().Completions)
}

func TestTracker_Errors(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(tx progress.Tx) error {
		_, err := f.tracker.SetCompletion(ctx, tx, learner, uuid.NewString(), true)
		return err
	})
	assert.ErrorIs(t, err, shared.ErrItemNotFound)

	err = f.store.WithinTx(ctx, func(tx progress.Tx) error {
		_, err := f.tracker.SetCompletion(ctx, tx, shared.LearnerID("stranger"), f.items[0], true)
		return err
	})
	assert.True(t, shared.IsNotEnrolled(err))
	assert.Equal(t, 0, f.store.Stats().Completions)
}

func TestTracker_ConcurrentFinalToggleIssuesOnce(t *testing.T) {
	f := newFixture(t, 3)
	f.toggle(t, f.items[0], true)
	f.toggle(t, f.items[1], true)

	var (
		wg     sync.WaitGroup
		issued atomic.Int32
		start  = make(chan struct{})
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = f.store.WithinTx(context.Background(), func(tx progress.Tx) error {
				out, err := f.tracker.SetCompletion(context.Background(), tx, learner, f.items[2], true)
				if err == nil && out.CertificateIssued() {
					issued.Add(1)
				}
				return err
			})
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), issued.Load())
	assert.Equal(t, 1, f.store.Stats().Certificates)
}

func TestAggregator_EmptyCourseStaysInProgress(t *testing.T) {
	f := newFixture(t, 0)
	issuer := certificate.NewIssuer(certcode.New(), uuid.NewString, nil)
	aggregator := progress.NewAggregator(issuer, nil)

	var out *progress.Recomputation
	require.NoError(t, f.store.WithinTx(context.Background(), func(tx progress.Tx) error {
		var err error
		out, err = aggregator.RecomputeFor(context.Background(), tx, learner, f.course)
		return err
	}))

	assert.False(t, out.Changed)
	assert.Equal(t, 0, out.ItemCount)
	assert.Equal(t, progress.StatusInProgress, out.Enrollment.Status)
	assert.Nil(t, out.Certificate)
}

func TestAggregator_RecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	f.toggle(t, f.items[0], true)
	f.toggle(t, f.items[1], true)

	issuer := certificate.NewIssuer(certcode.New(), uuid.NewString, nil)
	aggregator := progress.NewAggregator(issuer, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.WithinTx(context.Background(), func(tx progress.Tx) error {
			out, err := aggregator.RecomputeFor(context.Background(), tx, learner, f.course)
			if err != nil {
				return err
			}
			assert.False(t, out.Changed)
			assert.False(t, out.CertificateIssued)
			return nil
		}))
	}
	assert.Equal(t, 1, f.store.Stats().Certificates)
}
