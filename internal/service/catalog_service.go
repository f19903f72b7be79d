package service

import (
	"context"
	"database/sql"
	"regexp"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	appErrors "github.com/univops/registrar-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	CountByDepartment(ctx context.Context, departmentID string) (int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type departmentRepository interface {
	List(ctx context.Context) ([]models.Department, error)
	FindByID(ctx context.Context, id string) (*models.Department, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
	Delete(ctx context.Context, id string) error
}

type employeeCounter interface {
	CountByDepartment(ctx context.Context, departmentID string) (int, error)
}

// courseCodeRe is the canonical business-key format, e.g. CS101.
var courseCodeRe = regexp.MustCompile(`^[A-Z]+[0-9]+$`)

// CreateCourseRequest holds payload for creating courses.
type CreateCourseRequest struct {
	Code          string   `json:"code" validate:"required"`
	Name          string   `json:"name" validate:"required"`
	Credits       int      `json:"credits" validate:"required,gt=0"`
	Capacity      int      `json:"capacity" validate:"gte=0"`
	DepartmentID  *string  `json:"department_id"`
	Prerequisites []string `json:"prerequisites"`
}

// UpdateCourseRequest holds payload for updating courses. A changed code is
// a plain attribute update: the stable id keeps roster and grade data attached.
type UpdateCourseRequest struct {
	Code          string   `json:"code" validate:"required"`
	Name          string   `json:"name" validate:"required"`
	Credits       int      `json:"credits" validate:"required,gt=0"`
	Capacity      int      `json:"capacity" validate:"required,gt=0"`
	DepartmentID  *string  `json:"department_id"`
	Prerequisites []string `json:"prerequisites"`
}

// DepartmentRequest holds payload for creating or updating departments.
type DepartmentRequest struct {
	Name string `json:"name" validate:"required"`
}

// CatalogService owns course and department definitions.
type CatalogService struct {
	courses     courseRepository
	departments departmentRepository
	employees   employeeCounter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(courses courseRepository, departments departmentRepository, employees employeeCounter, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{courses: courses, departments: departments, employees: employees, validator: validate, logger: logger}
}

// ListCourses returns courses and pagination metadata.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return courses, pagination, nil
}

// GetCourse returns a course by its stable id.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// CreateCourse registers a new catalog course. The catalog is left
// unchanged on any validation failure.
func (s *CatalogService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid course payload")
	}
	if !courseCodeRe.MatchString(req.Code) {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "course code must match [A-Z]+[0-9]+")
	}
	capacity := req.Capacity
	if capacity == 0 {
		capacity = models.DefaultCourseCapacity
	}
	exists, err := s.courses.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "course code already exists")
	}
	course := &models.Course{
		Code:          req.Code,
		Name:          req.Name,
		Credits:       req.Credits,
		Capacity:      capacity,
		DepartmentID:  req.DepartmentID,
		Prerequisites: dedupe(req.Prerequisites),
	}
	if containsSelf(course.ID, course.Code, req.Prerequisites) {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "course cannot be its own prerequisite")
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// UpdateCourse modifies an existing course, including code renames.
func (s *CatalogService) UpdateCourse(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid course payload")
	}
	if !courseCodeRe.MatchString(req.Code) {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "course code must match [A-Z]+[0-9]+")
	}
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	exists, err := s.courses.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "course code already exists")
	}
	prereqs := dedupe(req.Prerequisites)
	for _, prereq := range prereqs {
		if prereq == id {
			return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "course cannot be its own prerequisite")
		}
	}
	course.Code = req.Code
	course.Name = req.Name
	course.Credits = req.Credits
	course.Capacity = req.Capacity
	course.DepartmentID = req.DepartmentID
	course.Prerequisites = prereqs
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// DeleteCourse removes the course definition only. Cleaning up dependent
// roster and grade data is the caller's responsibility; the catalog never
// reaches into the roster.
func (s *CatalogService) DeleteCourse(ctx context.Context, id string) error {
	if _, err := s.courses.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// ListDepartments returns all departments.
func (s *CatalogService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// GetDepartment returns a department by id.
func (s *CatalogService) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// CreateDepartment registers a new department.
func (s *CatalogService) CreateDepartment(ctx context.Context, req DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid department payload")
	}
	exists, err := s.departments.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate department name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "department name already exists")
	}
	department := &models.Department{Name: req.Name}
	if err := s.departments.Create(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return department, nil
}

// UpdateDepartment renames an existing department.
func (s *CatalogService) UpdateDepartment(ctx context.Context, id string, req DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid department payload")
	}
	department, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	exists, err := s.departments.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate department name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "department name already exists")
	}
	department.Name = req.Name
	if err := s.departments.Update(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}
	return department, nil
}

// DeleteDepartment removes a department. Deletion is rejected while courses
// or employees still reference it.
func (s *CatalogService) DeleteDepartment(ctx context.Context, id string) error {
	if _, err := s.departments.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	courses, err := s.courses.CountByDepartment(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count department courses")
	}
	if courses > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "department still referenced by courses")
	}
	if s.employees != nil {
		employees, err := s.employees.CountByDepartment(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count department employees")
		}
		if employees > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "department still referenced by employees")
		}
	}
	if err := s.departments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func containsSelf(id, code string, prereqs []string) bool {
	for _, prereq := range prereqs {
		if (id != "" && prereq == id) || (code != "" && prereq == code) {
			return true
		}
	}
	return false
}
