// Package memory implements the progress store in process memory. It honors the
// same uniqueness and locking contract as the postgres store and is used for
// local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// Store is a serializable in-memory store. Write transactions hold an exclusive
// lock for their whole duration and work on a copy that replaces the current
// state only on commit.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// Compile-time interface checks.
var (
	_ progress.Store   = (*Store)(nil)
	_ course.Authoring = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx implements progress.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx progress.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ReadOnly implements progress.Store. Writes made through the tx are discarded.
func (s *Store) ReadOnly(ctx context.Context, fn func(tx progress.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&tx{st: s.state.clone()})
}

// SaveCourse implements course.Authoring.
func (s *Store) SaveCourse(ctx context.Context, c *course.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.courses[c.ID] = *c
	return nil
}

// PublishItem implements course.Authoring.
func (s *Store) PublishItem(ctx context.Context, item *course.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.courses[item.CourseID]; !ok {
		return shared.ErrCourseNotFound
	}
	if _, ok := s.state.items[item.ID]; ok {
		return shared.NewDomainError("course", "PublishItem", shared.ErrAlreadyExists, "item already published")
	}
	for _, id := range s.state.itemsByCourse[item.CourseID] {
		if s.state.items[id].Position == item.Position {
			return shared.ErrPositionTaken
		}
	}

	s.state.items[item.ID] = *item
	s.state.itemsByCourse[item.CourseID] = append(s.state.itemsByCourse[item.CourseID], item.ID)
	return nil
}

// Stats reports row counts. Tests only.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Courses:      len(s.state.courses),
		Items:        len(s.state.items),
		Enrollments:  len(s.state.enrollments),
		Completions:  len(s.state.completions),
		Certificates: len(s.state.certificates),
	}
}

// Stats holds row counts.
type Stats struct {
	Courses      int
	Items        int
	Enrollments  int
	Completions  int
	Certificates int
}

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

type state struct {
	courses       map[string]course.Course
	items         map[string]course.ContentItem
	itemsByCourse map[string][]string

	enrollments  map[pairKey]progress.Enrollment       // (learner, course)
	completions  map[pairKey]progress.CompletionRecord // (learner, item)
	certificates map[string]certificate.Certificate    // by enrollment id
	codes        map[string]string                     // code -> enrollment id
}

type pairKey struct {
	learner string
	other   string
}

func newState() *state {
	return &state{
		courses:       make(map[string]course.Course),
		items:         make(map[string]course.ContentItem),
		itemsByCourse: make(map[string][]string),
		enrollments:   make(map[pairKey]progress.Enrollment),
		completions:   make(map[pairKey]progress.CompletionRecord),
		certificates:  make(map[string]certificate.Certificate),
		codes:         make(map[string]string),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.courses {
		c.courses[k] = v
	}
	for k, v := range st.items {
		c.items[k] = v
	}
	for k, v := range st.itemsByCourse {
		c.itemsByCourse[k] = append([]string(nil), v...)
	}
	for k, v := range st.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range st.completions {
		c.completions[k] = v
	}
	for k, v := range st.certificates {
		c.certificates[k] = v
	}
	for k, v := range st.codes {
		c.codes[k] = v
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Transaction
// ─────────────────────────────────────────────────────────────────────────────

type tx struct {
	st *state
}

func (t *tx) Courses() course.Registry                   { return registry{t.st} }
func (t *tx) Enrollments() progress.EnrollmentRepository { return enrollments{t.st} }
func (t *tx) Completions() progress.CompletionRepository { return completions{t.st} }
func (t *tx) Certificates() certificate.Repository       { return certificates{t.st} }

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

type registry struct{ st *state }

func (r registry) GetCourse(_ context.Context, courseID string) (*course.Course, error) {
	c, ok := r.st.courses[courseID]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return &c, nil
}

func (r registry) Items(_ context.Context, courseID string) ([]course.ContentItem, error) {
	if _, ok := r.st.courses[courseID]; !ok {
		return nil, shared.ErrCourseNotFound
	}
	ids := r.st.itemsByCourse[courseID]
	items := make([]course.ContentItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, r.st.items[id])
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

func (r registry) Count(_ context.Context, courseID string) (int, error) {
	if _, ok := r.st.courses[courseID]; !ok {
		return 0, shared.ErrCourseNotFound
	}
	return len(r.st.itemsByCourse[courseID]), nil
}

func (r registry) GetItem(_ context.Context, itemID string) (*course.ContentItem, error) {
	item, ok := r.st.items[itemID]
	if !ok {
		return nil, shared.ErrItemNotFound
	}
	return &item, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Enrollments
// ─────────────────────────────────────────────────────────────────────────────

type enrollments struct{ st *state }

func (r enrollments) Get(_ context.Context, learnerID, courseID string) (*progress.Enrollment, error) {
	e, ok := r.st.enrollments[pairKey{learnerID, courseID}]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return &e, nil
}

// GetForUpdate needs no extra locking: the enclosing write tx is exclusive.
func (r enrollments) GetForUpdate(ctx context.Context, learnerID, courseID string) (*progress.Enrollment, error) {
	return r.Get(ctx, learnerID, courseID)
}

func (r enrollments) CreateIfAbsent(_ context.Context, e *progress.Enrollment) (*progress.Enrollment, bool, error) {
	key := pairKey{e.LearnerID, e.CourseID}
	if existing, ok := r.st.enrollments[key]; ok {
		return &existing, false, nil
	}
	if _, ok := r.st.courses[e.CourseID]; !ok {
		return nil, false, shared.ErrCourseNotFound
	}
	r.st.enrollments[key] = *e
	stored := *e
	return &stored, true, nil
}

func (r enrollments) Update(_ context.Context, e *progress.Enrollment) error {
	key := pairKey{e.LearnerID, e.CourseID}
	if _, ok := r.st.enrollments[key]; !ok {
		return shared.ErrEnrollmentNotFound
	}
	r.st.enrollments[key] = *e
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Completions
// ─────────────────────────────────────────────────────────────────────────────

type completions struct{ st *state }

func (r completions) Get(_ context.Context, learnerID, itemID string) (*progress.CompletionRecord, error) {
	rec, ok := r.st.completions[pairKey{learnerID, itemID}]
	if !ok {
		return nil, shared.NewDomainError("progress", "GetCompletion", shared.ErrNotFound, "completion record not found")
	}
	return &rec, nil
}

func (r completions) Upsert(_ context.Context, rec *progress.CompletionRecord) error {
	key := pairKey{rec.LearnerID, rec.ItemID}
	if existing, ok := r.st.completions[key]; ok {
		rec.ID = existing.ID
	}
	r.st.completions[key] = *rec
	return nil
}

func (r completions) CountCompleted(ctx context.Context, learnerID, courseID string) (int, error) {
	done, err := r.CompletedItemIDs(ctx, learnerID, courseID)
	if err != nil {
		return 0, err
	}
	return len(done), nil
}

func (r completions) CompletedItemIDs(_ context.Context, learnerID, courseID string) (map[string]bool, error) {
	done := make(map[string]bool)
	for _, itemID := range r.st.itemsByCourse[courseID] {
		if rec, ok := r.st.completions[pairKey{learnerID, itemID}]; ok && rec.Completed {
			done[itemID] = true
		}
	}
	return done, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Certificates
// ─────────────────────────────────────────────────────────────────────────────

type certificates struct{ st *state }

func (r certificates) GetByEnrollment(_ context.Context, enrollmentID string) (*certificate.Certificate, error) {
	c, ok := r.st.certificates[enrollmentID]
	if !ok {
		return nil, shared.ErrCertificateNotFound
	}
	return &c, nil
}

func (r certificates) GetByCode(ctx context.Context, code string) (*certificate.Certificate, error) {
	enrollmentID, ok := r.st.codes[code]
	if !ok {
		return nil, shared.ErrCertificateNotFound
	}
	return r.GetByEnrollment(ctx, enrollmentID)
}

func (r certificates) InsertIfAbsent(_ context.Context, c *certificate.Certificate) (*certificate.Certificate, bool, error) {
	if existing, ok := r.st.certificates[c.EnrollmentID]; ok {
		return &existing, false, nil
	}
	if _, taken := r.st.codes[c.Code]; taken {
		return nil, false, shared.ErrCodeCollision
	}
	r.st.certificates[c.EnrollmentID] = *c
	r.st.codes[c.Code] = c.EnrollmentID
	stored := *c
	return &stored, true, nil
}
