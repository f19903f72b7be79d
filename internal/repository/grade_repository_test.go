package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univops/registrar-api/internal/models"
)

func newGradeMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGradeRepositoryFindByEnrollment(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "value", "comments", "assigned_at"}).
		AddRow("g1", "e1", "A", "", time.Now())
	mock.ExpectQuery("SELECT id, enrollment_id, value, comments, assigned_at FROM grades WHERE enrollment_id").
		WithArgs("e1").
		WillReturnRows(rows)

	grade, err := repo.FindByEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "A", grade.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFindByEnrollmentNotFound(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("SELECT id, enrollment_id, value, comments, assigned_at FROM grades WHERE enrollment_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEnrollment(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "value", "comments", "assigned_at", "course_id", "student_id", "course_code", "course_name", "credits"}).
		AddRow("g1", "e1", "B+", "", time.Now(), "c1", "s1", "CS101", "Intro", 3)
	mock.ExpectQuery("SELECT g.id, g.enrollment_id, g.value, g.comments, g.assigned_at").
		WithArgs("s1").
		WillReturnRows(rows)

	grades, err := repo.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, "CS101", grades[0].CourseCode)
	assert.Equal(t, 3, grades[0].Credits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("INSERT INTO grades").
		WithArgs(sqlmock.AnyArg(), "e1", "A", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	grade := &models.Grade{EnrollmentID: "e1", Value: "A"}
	require.NoError(t, repo.Create(context.Background(), grade))
	assert.NotEmpty(t, grade.ID)
	assert.False(t, grade.AssignedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpdateRefreshesTimestamp(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("UPDATE grades SET value").
		WithArgs("B", "late submission", sqlmock.AnyArg(), "g1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	grade := &models.Grade{ID: "g1", EnrollmentID: "e1", Value: "B", Comments: "late submission"}
	before := grade.AssignedAt
	require.NoError(t, repo.Update(context.Background(), grade))
	assert.True(t, grade.AssignedAt.After(before))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryDeleteByCourse(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("DELETE FROM grades WHERE enrollment_id IN").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeleteByCourse(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
