package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/certcode"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	assert.Equal(t, "host=localhost port=5432 dbname=academy user=postgres password=secret sslmode=disable connect_timeout=10", cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/academy"
	assert.Equal(t, "postgres://u:p@db:5432/academy", cfg.DSN())
}

func TestErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "certificates_code_key"}
	wrapped := fmt.Errorf("insert: %w", unique)

	assert.True(t, IsUniqueViolation(wrapped))
	assert.True(t, IsUniqueViolationOn(wrapped, "certificates_code_key"))
	assert.False(t, IsUniqueViolationOn(wrapped, "certificates_enrollment_key"))
	assert.False(t, IsConcurrencyFailure(wrapped))

	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := translateTxError("WithinTx", &pgconn.PgError{Code: code})
		assert.True(t, shared.IsConflict(err), code)
	}
	assert.Nil(t, translateTxError("WithinTx", nil))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
}

// ─────────────────────────────────────────────────────────────────────────────
// Integration tests, run against TEST_DATABASE_URL.
// ─────────────────────────────────────────────────────────────────────────────

func integrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URL = url
	conn, err := NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return NewStore(conn)
}

func seedCourse(t *testing.T, s *Store, items int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	courseID := uuid.NewString()
	require.NoError(t, s.Courses().SaveCourse(ctx, &course.Course{ID: courseID, Title: "Integration", CreatedAt: now}))

	ids := make([]string, items)
	for i := range ids {
		ids[i] = uuid.NewString()
		require.NoError(t, s.Courses().PublishItem(ctx, &course.ContentItem{
			ID: ids[i], CourseID: courseID, Position: i + 1, Kind: course.KindModule,
			Title: fmt.Sprintf("Item %d", i+1), CreatedAt: now,
		}))
	}
	return courseID, ids
}

func newTracker() *progress.Tracker {
	issuer := certificate.NewIssuer(certcode.New(), uuid.NewString, nil)
	return progress.NewTracker(progress.NewAggregator(issuer, nil), uuid.NewString, nil)
}

func TestStore_PublishItemConstraints(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	courseID, _ := seedCourse(t, s, 1)

	err := s.Courses().PublishItem(ctx, &course.ContentItem{
		ID: uuid.NewString(), CourseID: courseID, Position: 1, Kind: course.KindWorkshop, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, shared.ErrPositionTaken)

	err = s.Courses().PublishItem(ctx, &course.ContentItem{
		ID: uuid.NewString(), CourseID: uuid.NewString(), Position: 1, Kind: course.KindModule, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestStore_CompletionIssuesOneCertificate(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	courseID, items := seedCourse(t, s, 3)
	learner := shared.LearnerID("it-" + uuid.NewString()[:8])
	tracker := newTracker()

	require.NoError(t, s.WithinTx(ctx, func(tx progress.Tx) error {
		_, _, err := tx.Enrollments().CreateIfAbsent(ctx, progress.NewEnrollment(uuid.NewString(), learner, courseID, time.Now().UTC()))
		return err
	}))

	for _, id := range items[:2] {
		require.NoError(t, s.WithinTx(ctx, func(tx progress.Tx) error {
			_, err := tracker.SetCompletion(ctx, tx, learner, id, true)
			return err
		}))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx progress.Tx) error {
				out, err := tracker.SetCompletion(ctx, tx, learner, items[2], true)
				if err == nil && out.CertificateIssued() {
					mu.Lock()
					issued++
					mu.Unlock()
				}
				return err
			})
			if err != nil {
				assert.True(t, shared.IsConflict(err), err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, issued)

	require.NoError(t, s.ReadOnly(ctx, func(tx progress.Tx) error {
		e, err := tx.Enrollments().Get(ctx, learner.String(), courseID)
		require.NoError(t, err)
		assert.Equal(t, progress.StatusCompleted, e.Status)
		assert.Equal(t, shared.MaxPercent, e.ProgressPercent)

		cert, err := tx.Certificates().GetByEnrollment(ctx, e.ID)
		require.NoError(t, err)
		byCode, err := tx.Certificates().GetByCode(ctx, cert.Code)
		require.NoError(t, err)
		assert.Equal(t, cert.ID, byCode.ID)

		n, err := tx.Completions().CountCompleted(ctx, learner.String(), courseID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	}))
}

func TestStore_ReadOnlyRejectsWrites(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	courseID, _ := seedCourse(t, s, 1)

	err := s.ReadOnly(ctx, func(tx progress.Tx) error {
		_, _, err := tx.Enrollments().CreateIfAbsent(ctx, progress.NewEnrollment(uuid.NewString(), "reader", courseID, time.Now().UTC()))
		return err
	})
	assert.Error(t, err)
}
