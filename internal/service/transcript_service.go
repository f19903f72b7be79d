package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	appErrors "github.com/univops/registrar-api/pkg/errors"
)

type gradeRepository interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.GradeDetail, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
	DeleteByCourse(ctx context.Context, courseID string) error
	DeleteByStudent(ctx context.Context, studentID string) error
}

type enrollmentLookup interface {
	FindByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type gpaCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AssignGradeRequest holds payload for recording a grade.
type AssignGradeRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	Value     string `json:"value" validate:"required"`
	Comments  string `json:"comments"`
}

// TranscriptService owns grade records and GPA aggregation. Grade mutations
// are serialized through a single mutex so an enrollment never ends up with
// two grade records.
type TranscriptService struct {
	grades      gradeRepository
	enrollments enrollmentLookup
	cache       gpaCache
	cacheTTL    time.Duration
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewTranscriptService constructs the transcript service.
func NewTranscriptService(grades gradeRepository, enrollments enrollmentLookup, cache gpaCache, cacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TranscriptService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		grades:      grades,
		enrollments: enrollments,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

func gpaCacheKey(studentID string) string {
	return "gpa:" + studentID
}

// AssignGrade records a grade for an enrolled student. Re-assigning replaces
// the existing record in place, so an enrollment holds at most one grade.
func (s *TranscriptService) AssignGrade(ctx context.Context, req AssignGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "invalid grade payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	enrollment, err := s.enrollments.FindByPair(ctx, req.CourseID, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student has no enrollment for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	existing, err := s.grades.FindByEnrollment(ctx, enrollment.ID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}

	var grade *models.Grade
	if existing != nil {
		existing.Value = req.Value
		existing.Comments = req.Comments
		if err := s.grades.Update(ctx, existing); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
		}
		grade = existing
	} else {
		grade = &models.Grade{
			EnrollmentID: enrollment.ID,
			Value:        req.Value,
			Comments:     req.Comments,
		}
		if err := s.grades.Create(ctx, grade); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
		}
	}

	s.invalidateGPA(ctx, req.StudentID)
	return grade, nil
}

// GetGrade returns the grade a student holds for a course.
func (s *TranscriptService) GetGrade(ctx context.Context, courseID, studentID string) (*models.Grade, error) {
	enrollment, err := s.enrollments.FindByPair(ctx, courseID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student has no enrollment for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	grade, err := s.grades.FindByEnrollment(ctx, enrollment.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not assigned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// GradesOf returns a student's grade records with course context.
func (s *TranscriptService) GradesOf(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	grades, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// CourseGrades returns every grade recorded for a course.
func (s *TranscriptService) CourseGrades(ctx context.Context, courseID string) ([]models.GradeDetail, error) {
	grades, err := s.grades.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// DeleteGrade removes a single grade record.
func (s *TranscriptService) DeleteGrade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grade, err := s.grades.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if err := s.grades.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	if enrollment, err := s.enrollments.FindByID(ctx, grade.EnrollmentID); err == nil {
		s.invalidateGPA(ctx, enrollment.StudentID)
	} else {
		s.invalidateAllGPA(ctx)
	}
	return nil
}

// GPA returns the student's credit-weighted grade point average. The value
// is cached and recomputed after any grade mutation for the student.
func (s *TranscriptService) GPA(ctx context.Context, studentID string) (float64, error) {
	key := gpaCacheKey(studentID)
	if s.cache != nil {
		start := time.Now()
		var cached float64
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
		if !appErrors.HasCode(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("gpa cache read failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	grades, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	gpa := computeGPA(grades)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, gpa, s.cacheTTL); err != nil {
			s.logger.Warn("gpa cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return gpa, nil
}

// Transcript returns the student's full grade history plus GPA.
func (s *TranscriptService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	entries, err := s.GradesOf(ctx, studentID)
	if err != nil {
		return nil, err
	}
	gpa, err := s.GPA(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return &models.Transcript{StudentID: studentID, Entries: entries, GPA: gpa}, nil
}

// PurgeCourse drops every grade attached to a course's enrollments. Runs
// before the roster purge during a course deletion cascade.
func (s *TranscriptService) PurgeCourse(ctx context.Context, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.grades.DeleteByCourse(ctx, courseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge course grades")
	}
	s.invalidateAllGPA(ctx)
	return nil
}

// PurgeStudent drops every grade attached to a student's enrollments.
func (s *TranscriptService) PurgeStudent(ctx context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.grades.DeleteByStudent(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge student grades")
	}
	s.invalidateGPA(ctx, studentID)
	return nil
}

func (s *TranscriptService) invalidateGPA(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, gpaCacheKey(studentID)); err != nil {
		s.logger.Warn("gpa cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *TranscriptService) invalidateAllGPA(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "gpa:*"); err != nil {
		s.logger.Warn("gpa cache invalidation failed", zap.Error(err))
	}
}

// computeGPA is the credit-weighted mean over the grade point scale. A
// transcript with no grades or zero total credits yields 0.0.
func computeGPA(grades []models.GradeDetail) float64 {
	var points, credits float64
	for _, grade := range grades {
		points += models.GradePoints(grade.Value) * float64(grade.Credits)
		credits += float64(grade.Credits)
	}
	if credits == 0 {
		return 0.0
	}
	return points / credits
}
