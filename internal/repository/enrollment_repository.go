package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univops/registrar-api/internal/models"
)

// EnrollmentRepository handles persistence of roster entries.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByPair returns the enrollment entry for a (course, student) pair in
// any status, or sql.ErrNoRows when the pair was never enrolled.
func (r *EnrollmentRepository) FindByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, status, enrolled_at, withdrawn_at FROM enrollments WHERE course_id = $1 AND student_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByID returns an enrollment entry by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, status, enrolled_at, withdrawn_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountEnrolled returns the number of seats currently taken in a course.
func (r *EnrollmentRepository) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// ListByCourse returns the active roster of a course in enrollment order.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, status, enrolled_at, withdrawn_at FROM enrollments WHERE course_id = $1 AND status = $2 ORDER BY enrolled_at ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns a student's active enrollments in enrollment order.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, status, enrolled_at, withdrawn_at FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY enrolled_at ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// HasEverEnrolled reports whether a student ever held an enrollment entry
// for the course, regardless of current status.
func (r *EnrollmentRepository) HasEverEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment history: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment entry.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	const query = `INSERT INTO enrollments (id, course_id, student_id, status, enrolled_at, withdrawn_at)
        VALUES (:id, :course_id, :student_id, :status, :enrolled_at, :withdrawn_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Reactivate flips a withdrawn entry back to enrolled with a fresh date.
func (r *EnrollmentRepository) Reactivate(ctx context.Context, id string, enrolledAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, enrolled_at = $3, withdrawn_at = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusEnrolled, enrolledAt); err != nil {
		return fmt.Errorf("reactivate enrollment: %w", err)
	}
	return nil
}

// Withdraw marks an entry as withdrawn. The row is kept so enrollment
// history stays available to prerequisite checks.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string, withdrawnAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, withdrawn_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, &withdrawnAt); err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	return nil
}

// DeleteByCourse removes all entries for a course (course deletion cascade).
func (r *EnrollmentRepository) DeleteByCourse(ctx context.Context, courseID string) error {
	const query = `DELETE FROM enrollments WHERE course_id = $1`
	if _, err := r.db.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("purge course enrollments: %w", err)
	}
	return nil
}

// DeleteByStudent removes all entries for a student (student deletion cascade).
func (r *EnrollmentRepository) DeleteByStudent(ctx context.Context, studentID string) error {
	const query = `DELETE FROM enrollments WHERE student_id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID); err != nil {
		return fmt.Errorf("purge student enrollments: %w", err)
	}
	return nil
}
