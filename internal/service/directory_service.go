package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	appErrors "github.com/univops/registrar-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.DirectoryFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByStudentNo(ctx context.Context, studentNo string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type employeeRepository interface {
	List(ctx context.Context, filter models.DirectoryFilter) ([]models.Employee, int, error)
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	Create(ctx context.Context, employee *models.Employee) error
	Update(ctx context.Context, employee *models.Employee) error
	Delete(ctx context.Context, id string) error
}

// StudentRequest holds payload for creating or updating students.
type StudentRequest struct {
	StudentNo string `json:"student_no" validate:"required"`
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Major     string `json:"major"`
}

// EmployeeRequest holds payload for creating or updating employees.
type EmployeeRequest struct {
	FullName     string  `json:"full_name" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	Position     string  `json:"position" validate:"required"`
	DepartmentID *string `json:"department_id"`
}

// DirectoryService owns person records: students and employees.
type DirectoryService struct {
	students  studentRepository
	employees employeeRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDirectoryService constructs the directory service.
func NewDirectoryService(students studentRepository, employees employeeRepository, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{students: students, employees: employees, validator: validate, logger: logger}
}

// ListStudents returns students matching the filter with pagination metadata.
func (s *DirectoryService) ListStudents(ctx context.Context, filter models.DirectoryFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationOf(filter, total), nil
}

// GetStudent returns a student by id.
func (s *DirectoryService) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// CreateStudent registers a new student record.
func (s *DirectoryService) CreateStudent(ctx context.Context, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid student payload")
	}
	exists, err := s.students.ExistsByStudentNo(ctx, req.StudentNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "student number already exists")
	}
	student := &models.Student{
		StudentNo: req.StudentNo,
		FullName:  req.FullName,
		Email:     req.Email,
		Major:     req.Major,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// UpdateStudent modifies an existing student record.
func (s *DirectoryService) UpdateStudent(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid student payload")
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	exists, err := s.students.ExistsByStudentNo(ctx, req.StudentNo, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "student number already exists")
	}
	student.StudentNo = req.StudentNo
	student.FullName = req.FullName
	student.Email = req.Email
	student.Major = req.Major
	if err := s.students.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// DeleteStudent removes the identity record only. Cleaning up dependent
// roster and grade data is the caller's responsibility.
func (s *DirectoryService) DeleteStudent(ctx context.Context, id string) error {
	if _, err := s.students.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.students.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// ListEmployees returns employees matching the filter with pagination metadata.
func (s *DirectoryService) ListEmployees(ctx context.Context, filter models.DirectoryFilter) ([]models.Employee, *models.Pagination, error) {
	employees, total, err := s.employees.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list employees")
	}
	return employees, paginationOf(filter, total), nil
}

// GetEmployee returns an employee by id.
func (s *DirectoryService) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	employee, err := s.employees.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	return employee, nil
}

// CreateEmployee registers a new employee record.
func (s *DirectoryService) CreateEmployee(ctx context.Context, req EmployeeRequest) (*models.Employee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid employee payload")
	}
	employee := &models.Employee{
		FullName:     req.FullName,
		Email:        req.Email,
		Position:     req.Position,
		DepartmentID: req.DepartmentID,
	}
	if err := s.employees.Create(ctx, employee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create employee")
	}
	return employee, nil
}

// UpdateEmployee modifies an existing employee record.
func (s *DirectoryService) UpdateEmployee(ctx context.Context, id string, req EmployeeRequest) (*models.Employee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid employee payload")
	}
	employee, err := s.employees.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	employee.FullName = req.FullName
	employee.Email = req.Email
	employee.Position = req.Position
	employee.DepartmentID = req.DepartmentID
	if err := s.employees.Update(ctx, employee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update employee")
	}
	return employee, nil
}

// DeleteEmployee removes an employee record.
func (s *DirectoryService) DeleteEmployee(ctx context.Context, id string) error {
	if _, err := s.employees.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	if err := s.employees.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete employee")
	}
	return nil
}

// Search runs one query across both directories.
func (s *DirectoryService) Search(ctx context.Context, query string, page, pageSize int) (*models.DirectorySearchResult, error) {
	filter := models.DirectoryFilter{Search: query, Page: page, PageSize: pageSize}
	students, _, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	employees, _, err := s.employees.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search employees")
	}
	return &models.DirectorySearchResult{Students: students, Employees: employees}, nil
}

func paginationOf(filter models.DirectoryFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
