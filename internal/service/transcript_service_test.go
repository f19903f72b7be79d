package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	appErrors "github.com/univops/registrar-api/pkg/errors"
)

type mockGradeRepo struct {
	grades  map[string]*models.Grade
	details map[string][]models.GradeDetail
	nextID  int
	deleted []string
}

func (m *mockGradeRepo) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	for _, g := range m.grades {
		if g.EnrollmentID == enrollmentID {
			copied := *g
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := m.grades[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	return m.details[studentID], nil
}

func (m *mockGradeRepo) ListByCourse(ctx context.Context, courseID string) ([]models.GradeDetail, error) {
	var list []models.GradeDetail
	for _, entries := range m.details {
		for _, d := range entries {
			if d.CourseID == courseID {
				list = append(list, d)
			}
		}
	}
	return list, nil
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if m.grades == nil {
		m.grades = make(map[string]*models.Grade)
	}
	if grade.ID == "" {
		m.nextID++
		grade.ID = fmt.Sprintf("g%d", m.nextID)
	}
	if grade.AssignedAt.IsZero() {
		grade.AssignedAt = time.Now().UTC()
	}
	copied := *grade
	m.grades[grade.ID] = &copied
	return nil
}

func (m *mockGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	copied := *grade
	m.grades[grade.ID] = &copied
	return nil
}

func (m *mockGradeRepo) Delete(ctx context.Context, id string) error {
	delete(m.grades, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockGradeRepo) DeleteByCourse(ctx context.Context, courseID string) error {
	return nil
}

func (m *mockGradeRepo) DeleteByStudent(ctx context.Context, studentID string) error {
	return nil
}

type mockEnrollLookup struct {
	byPair map[string]*models.Enrollment
}

func (m *mockEnrollLookup) FindByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	if e, ok := m.byPair[pairKey(courseID, studentID)]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollLookup) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	for _, e := range m.byPair {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockCache struct {
	values  map[string][]byte
	deleted []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	if pattern == "gpa:*" {
		m.values = make(map[string][]byte)
		return nil
	}
	delete(m.values, pattern)
	return nil
}

func newTranscriptFixture() (*TranscriptService, *mockGradeRepo, *mockEnrollLookup, *mockCache) {
	grades := &mockGradeRepo{grades: make(map[string]*models.Grade), details: make(map[string][]models.GradeDetail)}
	enrollments := &mockEnrollLookup{byPair: map[string]*models.Enrollment{
		pairKey("cs101", "s1"): {ID: "e1", CourseID: "cs101", StudentID: "s1", Status: models.EnrollmentStatusEnrolled},
	}}
	cacheStore := &mockCache{values: make(map[string][]byte)}
	svc := NewTranscriptService(grades, enrollments, cacheStore, time.Minute, nil, validator.New(), zap.NewNop())
	return svc, grades, enrollments, cacheStore
}

func TestTranscriptServiceAssignGradeRequiresEnrollment(t *testing.T) {
	svc, _, _, _ := newTranscriptFixture()

	_, err := svc.AssignGrade(context.Background(), AssignGradeRequest{CourseID: "cs201", StudentID: "s1", Value: "A"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotEnrolled))
}

func TestTranscriptServiceAssignGradeReplacesExisting(t *testing.T) {
	svc, grades, _, _ := newTranscriptFixture()
	ctx := context.Background()

	first, err := svc.AssignGrade(ctx, AssignGradeRequest{CourseID: "cs101", StudentID: "s1", Value: "C"})
	require.NoError(t, err)

	second, err := svc.AssignGrade(ctx, AssignGradeRequest{CourseID: "cs101", StudentID: "s1", Value: "A", Comments: "retake"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, grades.grades, 1)
	assert.Equal(t, "A", grades.grades[first.ID].Value)
	assert.Equal(t, "retake", grades.grades[first.ID].Comments)
}

func TestTranscriptServiceAssignGradeInvalidatesGPA(t *testing.T) {
	svc, _, _, cacheStore := newTranscriptFixture()
	ctx := context.Background()

	_, err := svc.GPA(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, cacheStore.values, "gpa:s1")

	_, err = svc.AssignGrade(ctx, AssignGradeRequest{CourseID: "cs101", StudentID: "s1", Value: "B"})
	require.NoError(t, err)
	assert.NotContains(t, cacheStore.values, "gpa:s1")
	assert.Contains(t, cacheStore.deleted, "gpa:s1")
}

func TestTranscriptServiceGPAEmptyTranscript(t *testing.T) {
	svc, _, _, _ := newTranscriptFixture()

	gpa, err := svc.GPA(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, gpa)
}

func TestTranscriptServiceGPAWeightedByCredits(t *testing.T) {
	svc, grades, _, _ := newTranscriptFixture()
	grades.details["s1"] = []models.GradeDetail{
		{Grade: models.Grade{ID: "g1", Value: "A"}, CourseID: "cs101", StudentID: "s1", Credits: 4},
		{Grade: models.Grade{ID: "g2", Value: "B+"}, CourseID: "cs201", StudentID: "s1", Credits: 3},
		{Grade: models.Grade{ID: "g3", Value: "C"}, CourseID: "math201", StudentID: "s1", Credits: 2},
	}

	gpa, err := svc.GPA(context.Background(), "s1")
	require.NoError(t, err)
	// (4.0*4 + 3.3*3 + 2.0*2) / 9
	assert.InDelta(t, 3.3222, gpa, 0.0001)
}

func TestTranscriptServiceGPAServedFromCache(t *testing.T) {
	svc, grades, _, _ := newTranscriptFixture()
	grades.details["s1"] = []models.GradeDetail{
		{Grade: models.Grade{ID: "g1", Value: "B"}, CourseID: "cs101", StudentID: "s1", Credits: 3},
	}

	gpa, err := svc.GPA(context.Background(), "s1")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, gpa, 0.0001)

	// A stale cache entry wins until invalidated, proving the cache path
	// is actually consulted.
	grades.details["s1"] = nil
	gpa, err = svc.GPA(context.Background(), "s1")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, gpa, 0.0001)
}

func TestTranscriptServiceGetGrade(t *testing.T) {
	svc, _, _, _ := newTranscriptFixture()
	ctx := context.Background()

	_, err := svc.GetGrade(ctx, "cs101", "s1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	_, err = svc.AssignGrade(ctx, AssignGradeRequest{CourseID: "cs101", StudentID: "s1", Value: "A-"})
	require.NoError(t, err)

	grade, err := svc.GetGrade(ctx, "cs101", "s1")
	require.NoError(t, err)
	assert.Equal(t, "A-", grade.Value)
}

func TestTranscriptServiceDeleteGradeInvalidatesGPA(t *testing.T) {
	svc, grades, _, cacheStore := newTranscriptFixture()
	ctx := context.Background()

	assigned, err := svc.AssignGrade(ctx, AssignGradeRequest{CourseID: "cs101", StudentID: "s1", Value: "B"})
	require.NoError(t, err)

	_, err = svc.GPA(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGrade(ctx, assigned.ID))
	assert.Contains(t, grades.deleted, assigned.ID)
	assert.NotContains(t, cacheStore.values, "gpa:s1")
}

func TestTranscriptServiceTranscript(t *testing.T) {
	svc, grades, _, _ := newTranscriptFixture()
	grades.details["s1"] = []models.GradeDetail{
		{Grade: models.Grade{ID: "g1", Value: "A"}, CourseID: "cs101", StudentID: "s1", CourseCode: "CS101", Credits: 3},
	}

	transcript, err := svc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", transcript.StudentID)
	require.Len(t, transcript.Entries, 1)
	assert.InDelta(t, 4.0, transcript.GPA, 0.0001)
}
