package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	"github.com/univops/registrar-api/pkg/config"
	appErrors "github.com/univops/registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	CountEnrolled(ctx context.Context, courseID string) (int, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Reactivate(ctx context.Context, id string, enrolledAt time.Time) error
	Withdraw(ctx context.Context, id string, withdrawnAt time.Time) error
	DeleteByCourse(ctx context.Context, courseID string) error
	DeleteByStudent(ctx context.Context, studentID string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type gradeReader interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error)
}

// EnrollRequest holds payload for a single enrollment mutation.
type EnrollRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// BulkEnrollRequest holds payload for enrolling a cohort into one course.
type BulkEnrollRequest struct {
	CourseID   string   `json:"course_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
}

// RosterService owns enrollment state. All mutations are serialized through
// a single mutex so seat counting never races with admission.
type RosterService struct {
	enrollments enrollmentRepository
	courses     courseReader
	students    studentReader
	grades      gradeReader
	policy      config.RegistrarConfig
	validator   *validator.Validate
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewRosterService constructs the roster service.
func NewRosterService(enrollments enrollmentRepository, courses courseReader, students studentReader, grades gradeReader, policy config.RegistrarConfig, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		enrollments: enrollments,
		courses:     courses,
		students:    students,
		grades:      grades,
		policy:      policy,
		validator:   validate,
		logger:      logger,
	}
}

// AvailableSeats returns capacity minus active headcount for a course.
// An unknown course is an explicit error, never a zero.
func (s *RosterService) AvailableSeats(ctx context.Context, courseID string) (int, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	taken, err := s.enrollments.CountEnrolled(ctx, courseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return course.Capacity - taken, nil
}

// CanEnroll evaluates admission without mutating anything. Checks run in a
// fixed order and the first failure wins: course existence, then seats,
// then prerequisites.
func (s *RosterService) CanEnroll(ctx context.Context, courseID, studentID string) (*models.Eligibility, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.Eligibility{Eligible: false, Reason: appErrors.ErrNotFound.Code}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return s.evaluate(ctx, course, studentID)
}

// Enroll admits a student into a course. Enrolling an already enrolled
// student is a no-op returning the existing entry.
func (s *RosterService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid enrollment payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	existing, err := s.enrollments.FindByPair(ctx, req.CourseID, req.StudentID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if existing != nil && existing.Status == models.EnrollmentStatusEnrolled {
		return existing, nil
	}

	eligibility, err := s.evaluate(ctx, course, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		switch eligibility.Reason {
		case appErrors.ErrCapacityExceeded.Code:
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "course is full")
		case appErrors.ErrPrerequisiteNotMet.Code:
			return nil, appErrors.Clone(appErrors.ErrPrerequisiteNotMet, "prerequisites not completed")
		default:
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is not eligible")
		}
	}

	return s.admit(ctx, existing, req.CourseID, req.StudentID)
}

// Unenroll withdraws a student from a course. The entry is kept in
// withdrawn state so enrollment history survives for prerequisite checks.
// Withdrawing a student who is not enrolled is a no-op.
func (s *RosterService) Unenroll(ctx context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.enrollments.FindByPair(ctx, courseID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if entry.Status == models.EnrollmentStatusWithdrawn {
		return nil
	}
	if err := s.enrollments.Withdraw(ctx, entry.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	return nil
}

// BulkEnroll admits a cohort into one course. The whole batch is rejected
// up front when remaining seats cannot hold it; otherwise each student is
// checked individually and failures do not roll back earlier admissions.
func (s *RosterService) BulkEnroll(ctx context.Context, req BulkEnrollRequest) ([]models.BulkEnrollOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid bulk enrollment payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	taken, err := s.enrollments.CountEnrolled(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if len(req.StudentIDs) > course.Capacity-taken {
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "batch exceeds remaining seats")
	}

	outcomes := make([]models.BulkEnrollOutcome, 0, len(req.StudentIDs))
	for _, studentID := range req.StudentIDs {
		outcomes = append(outcomes, s.bulkAdmit(ctx, course, studentID))
	}
	return outcomes, nil
}

func (s *RosterService) bulkAdmit(ctx context.Context, course *models.Course, studentID string) models.BulkEnrollOutcome {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: false, Reason: appErrors.ErrNotFound.Code}
		}
		return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: false, Reason: appErrors.ErrInternal.Code}
	}

	existing, err := s.enrollments.FindByPair(ctx, course.ID, studentID)
	if err != nil && err != sql.ErrNoRows {
		return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: false, Reason: appErrors.ErrInternal.Code}
	}
	if existing != nil && existing.Status == models.EnrollmentStatusEnrolled {
		return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: true}
	}

	complete, err := s.prerequisitesComplete(ctx, course, studentID)
	if err != nil {
		return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: false, Reason: appErrors.ErrInternal.Code}
	}
	if !complete {
		return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: false, Reason: appErrors.ErrPrerequisiteNotMet.Code}
	}

	if _, err := s.admit(ctx, existing, course.ID, studentID); err != nil {
		return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: false, Reason: appErrors.ErrInternal.Code}
	}
	return models.BulkEnrollOutcome{StudentID: studentID, Enrolled: true}
}

// SeedEnroll records an enrollment without admission checks. Reserved for
// trusted data loading paths.
func (s *RosterService) SeedEnroll(ctx context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.enrollments.FindByPair(ctx, courseID, studentID)
	if err != nil && err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if existing != nil && existing.Status == models.EnrollmentStatusEnrolled {
		return nil
	}
	_, err = s.admit(ctx, existing, courseID, studentID)
	return err
}

// EnrolledStudents returns the active roster of a course in admission order.
func (s *RosterService) EnrolledStudents(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	entries, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return entries, nil
}

// CoursesOf returns a student's active enrollments. Unknown students simply
// yield an empty roster.
func (s *RosterService) CoursesOf(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	entries, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return entries, nil
}

// PurgeCourse removes every roster entry of a course, regardless of status.
func (s *RosterService) PurgeCourse(ctx context.Context, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enrollments.DeleteByCourse(ctx, courseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge course enrollments")
	}
	return nil
}

// PurgeStudent removes every roster entry of a student, regardless of status.
func (s *RosterService) PurgeStudent(ctx context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enrollments.DeleteByStudent(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge student enrollments")
	}
	return nil
}

func (s *RosterService) evaluate(ctx context.Context, course *models.Course, studentID string) (*models.Eligibility, error) {
	taken, err := s.enrollments.CountEnrolled(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if taken >= course.Capacity {
		return &models.Eligibility{Eligible: false, Reason: appErrors.ErrCapacityExceeded.Code}, nil
	}
	complete, err := s.prerequisitesComplete(ctx, course, studentID)
	if err != nil {
		return nil, err
	}
	if !complete {
		return &models.Eligibility{Eligible: false, Reason: appErrors.ErrPrerequisiteNotMet.Code}, nil
	}
	return &models.Eligibility{Eligible: true}, nil
}

// prerequisitesComplete checks the student's history against the course's
// prerequisite set. Prerequisite ids that no longer resolve to a catalog
// course are skipped rather than blocking admission forever.
func (s *RosterService) prerequisitesComplete(ctx context.Context, course *models.Course, studentID string) (bool, error) {
	if len(course.Prerequisites) == 0 {
		return true, nil
	}
	existing, err := s.courses.ExistingIDs(ctx, course.Prerequisites)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve prerequisites")
	}
	for _, prereqID := range course.Prerequisites {
		if !existing[prereqID] {
			s.logger.Warn("skipping dangling prerequisite",
				zap.String("course_id", course.ID),
				zap.String("prerequisite_id", prereqID))
			continue
		}
		done, err := s.hasCompleted(ctx, prereqID, studentID)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// hasCompleted reports whether the student completed a course under the
// configured policy. Under the default policy any enrollment entry counts,
// including withdrawn ones; under the passed policy a recorded grade at or
// above the passing threshold is required.
func (s *RosterService) hasCompleted(ctx context.Context, courseID, studentID string) (bool, error) {
	entry, err := s.enrollments.FindByPair(ctx, courseID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}
	if s.policy.CompletionPolicy != config.CompletionPolicyPassed {
		return true, nil
	}
	grade, err := s.grades.FindByEnrollment(ctx, entry.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return models.GradePoints(grade.Value) >= s.policy.PassingPoints, nil
}

func (s *RosterService) admit(ctx context.Context, existing *models.Enrollment, courseID, studentID string) (*models.Enrollment, error) {
	now := time.Now().UTC()
	if existing != nil {
		if err := s.enrollments.Reactivate(ctx, existing.ID, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
		}
		existing.Status = models.EnrollmentStatusEnrolled
		existing.EnrolledAt = now
		existing.WithdrawnAt = nil
		return existing, nil
	}
	entry := &models.Enrollment{
		CourseID:   courseID,
		StudentID:  studentID,
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: now,
	}
	if err := s.enrollments.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return entry, nil
}
