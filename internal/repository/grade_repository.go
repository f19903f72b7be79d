package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univops/registrar-api/internal/models"
)

// GradeRepository handles persistence of grade records. A grade references
// exactly one enrollment; the enrollment_id column is unique.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindByEnrollment returns the grade held by an enrollment, if any.
func (r *GradeRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	const query = `SELECT id, enrollment_id, value, comments, assigned_at FROM grades WHERE enrollment_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindByID returns a grade by its own ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, enrollment_id, value, comments, assigned_at FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByStudent returns a student's grades joined with course context.
// The join is inner on courses, so grades whose course was deleted are
// excluded, which keeps them out of GPA aggregation.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.enrollment_id, g.value, g.comments, g.assigned_at,
        e.course_id, e.student_id, c.code AS course_code, c.name AS course_name, c.credits
        FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY g.assigned_at ASC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// ListByCourse returns all grades recorded for a course.
func (r *GradeRepository) ListByCourse(ctx context.Context, courseID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.enrollment_id, g.value, g.comments, g.assigned_at,
        e.course_id, e.student_id, c.code AS course_code, c.name AS course_name, c.credits
        FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.course_id = $1
        ORDER BY g.assigned_at ASC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, courseID); err != nil {
		return nil, fmt.Errorf("list course grades: %w", err)
	}
	return grades, nil
}

// Create inserts a new grade record.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.AssignedAt.IsZero() {
		grade.AssignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, enrollment_id, value, comments, assigned_at)
        VALUES (:id, :enrollment_id, :value, :comments, :assigned_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update replaces value, comments and timestamp of an existing grade in
// place, keeping its identity.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.AssignedAt = time.Now().UTC()
	const query = `UPDATE grades SET value = :value, comments = :comments, assigned_at = :assigned_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade record.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grades WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}

// DeleteByCourse removes all grades attached to a course's enrollments.
// Runs before the roster purge during a course deletion cascade.
func (r *GradeRepository) DeleteByCourse(ctx context.Context, courseID string) error {
	const query = `DELETE FROM grades WHERE enrollment_id IN (SELECT id FROM enrollments WHERE course_id = $1)`
	if _, err := r.db.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("purge course grades: %w", err)
	}
	return nil
}

// DeleteByStudent removes all grades attached to a student's enrollments.
func (r *GradeRepository) DeleteByStudent(ctx context.Context, studentID string) error {
	const query = `DELETE FROM grades WHERE enrollment_id IN (SELECT id FROM enrollments WHERE student_id = $1)`
	if _, err := r.db.ExecContext(ctx, query, studentID); err != nil {
		return fmt.Errorf("purge student grades: %w", err)
	}
	return nil
}
