package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	appErrors "github.com/univops/registrar-api/pkg/errors"
)

type mockCourseRepo struct {
	courses map[string]*models.Course
	nextID  int
	deleted []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var list []models.Course
	for _, c := range m.courses {
		list = append(list, *c)
	}
	return list, len(list), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	for _, c := range m.courses {
		if c.Code == code && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCourseRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for _, id := range ids {
		if _, ok := m.courses[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (m *mockCourseRepo) CountByDepartment(ctx context.Context, departmentID string) (int, error) {
	count := 0
	for _, c := range m.courses {
		if c.DepartmentID != nil && *c.DepartmentID == departmentID {
			count++
		}
	}
	return count, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[string]*models.Course)
	}
	if course.ID == "" {
		m.nextID++
		course.ID = fmt.Sprintf("c%d", m.nextID)
	}
	copied := *course
	m.courses[course.ID] = &copied
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	copied := *course
	m.courses[course.ID] = &copied
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockDepartmentRepo struct {
	departments map[string]*models.Department
	nextID      int
	deleted     []string
}

func (m *mockDepartmentRepo) List(ctx context.Context) ([]models.Department, error) {
	var list []models.Department
	for _, d := range m.departments {
		list = append(list, *d)
	}
	return list, nil
}

func (m *mockDepartmentRepo) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if d, ok := m.departments[id]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDepartmentRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	for _, d := range m.departments {
		if d.Name == name && d.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDepartmentRepo) Create(ctx context.Context, department *models.Department) error {
	if m.departments == nil {
		m.departments = make(map[string]*models.Department)
	}
	if department.ID == "" {
		m.nextID++
		department.ID = fmt.Sprintf("d%d", m.nextID)
	}
	copied := *department
	m.departments[department.ID] = &copied
	return nil
}

func (m *mockDepartmentRepo) Update(ctx context.Context, department *models.Department) error {
	copied := *department
	m.departments[department.ID] = &copied
	return nil
}

func (m *mockDepartmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.departments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockEmployeeCounter struct {
	counts map[string]int
}

func (m *mockEmployeeCounter) CountByDepartment(ctx context.Context, departmentID string) (int, error) {
	return m.counts[departmentID], nil
}

func newCatalogFixture() (*CatalogService, *mockCourseRepo, *mockDepartmentRepo, *mockEmployeeCounter) {
	courses := &mockCourseRepo{courses: make(map[string]*models.Course)}
	departments := &mockDepartmentRepo{departments: make(map[string]*models.Department)}
	employees := &mockEmployeeCounter{counts: make(map[string]int)}
	svc := NewCatalogService(courses, departments, employees, validator.New(), zap.NewNop())
	return svc, courses, departments, employees
}

func TestCatalogServiceCreateCourse(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()

	course, err := svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "CS101", Name: "Intro", Credits: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, course.ID)
	assert.Equal(t, models.DefaultCourseCapacity, course.Capacity)
}

func TestCatalogServiceCreateCourseRejectsBadCode(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()

	for _, code := range []string{"cs101", "101CS", "CS 101", ""} {
		_, err := svc.CreateCourse(context.Background(), CreateCourseRequest{Code: code, Name: "Intro", Credits: 3})
		require.Error(t, err, "code %q", code)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument))
	}
}

func TestCatalogServiceCreateCourseDuplicateCode(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()
	ctx := context.Background()

	_, err := svc.CreateCourse(ctx, CreateCourseRequest{Code: "CS101", Name: "Intro", Credits: 3})
	require.NoError(t, err)

	_, err = svc.CreateCourse(ctx, CreateCourseRequest{Code: "CS101", Name: "Other", Credits: 3})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDuplicateKey))
}

func TestCatalogServiceUpdateCourseRenameKeepsID(t *testing.T) {
	svc, courses, _, _ := newCatalogFixture()
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, CreateCourseRequest{Code: "CS101", Name: "Intro", Credits: 3})
	require.NoError(t, err)

	updated, err := svc.UpdateCourse(ctx, course.ID, UpdateCourseRequest{Code: "CS110", Name: "Intro v2", Credits: 3, Capacity: 25})
	require.NoError(t, err)
	assert.Equal(t, course.ID, updated.ID)
	assert.Equal(t, "CS110", courses.courses[course.ID].Code)
}

func TestCatalogServiceSelfPrerequisiteRejected(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, CreateCourseRequest{Code: "CS101", Name: "Intro", Credits: 3})
	require.NoError(t, err)

	_, err = svc.UpdateCourse(ctx, course.ID, UpdateCourseRequest{Code: "CS101", Name: "Intro", Credits: 3, Capacity: 30, Prerequisites: []string{course.ID}})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument))
}

func TestCatalogServiceDeleteCourseLeavesDanglingReferences(t *testing.T) {
	svc, courses, _, _ := newCatalogFixture()
	ctx := context.Background()

	intro, err := svc.CreateCourse(ctx, CreateCourseRequest{Code: "CS101", Name: "Intro", Credits: 3})
	require.NoError(t, err)
	advanced, err := svc.CreateCourse(ctx, CreateCourseRequest{Code: "CS201", Name: "Advanced", Credits: 4, Prerequisites: []string{intro.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCourse(ctx, intro.ID))
	assert.Contains(t, courses.deleted, intro.ID)
	// The prerequisite reference stays; eligibility checks skip it.
	assert.Equal(t, []string{intro.ID}, courses.courses[advanced.ID].Prerequisites)
}

func TestCatalogServiceDepartmentDuplicateName(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()
	ctx := context.Background()

	_, err := svc.CreateDepartment(ctx, DepartmentRequest{Name: "Science"})
	require.NoError(t, err)

	_, err = svc.CreateDepartment(ctx, DepartmentRequest{Name: "Science"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDuplicateKey))
}

func TestCatalogServiceDeleteDepartmentConflicts(t *testing.T) {
	svc, _, departments, employees := newCatalogFixture()
	ctx := context.Background()

	department, err := svc.CreateDepartment(ctx, DepartmentRequest{Name: "Science"})
	require.NoError(t, err)

	_, err = svc.CreateCourse(ctx, CreateCourseRequest{Code: "SCI100", Name: "Basics", Credits: 2, DepartmentID: &department.ID})
	require.NoError(t, err)

	err = svc.DeleteDepartment(ctx, department.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	empty, err := svc.CreateDepartment(ctx, DepartmentRequest{Name: "Arts"})
	require.NoError(t, err)
	employees.counts[empty.ID] = 1
	err = svc.DeleteDepartment(ctx, empty.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	employees.counts[empty.ID] = 0
	require.NoError(t, svc.DeleteDepartment(ctx, empty.ID))
	assert.Contains(t, departments.deleted, empty.ID)
}
