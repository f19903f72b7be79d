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

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindByPair(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "student_id", "status", "enrolled_at", "withdrawn_at"}).
		AddRow("e1", "c1", "s1", models.EnrollmentStatusEnrolled, time.Now(), nil)
	mock.ExpectQuery("SELECT id, course_id, student_id, status, enrolled_at, withdrawn_at FROM enrollments WHERE course_id").
		WithArgs("c1", "s1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByPair(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "e1", enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByPairNotFound(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT id, course_id, student_id, status, enrolled_at, withdrawn_at FROM enrollments WHERE course_id").
		WithArgs("c1", "s1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByPair(context.Background(), "c1", "s1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountEnrolled(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE course_id`).
		WithArgs("c1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountEnrolled(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "c1", "s1", string(models.EnrollmentStatusEnrolled), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{CourseID: "c1", StudentID: "s1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdrawAndReactivate(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("e1", string(models.EnrollmentStatusWithdrawn), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Withdraw(context.Background(), "e1", now))

	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("e1", string(models.EnrollmentStatusEnrolled), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Reactivate(context.Background(), "e1", now))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryHasEverEnrolled(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE course_id").
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	ever, err := repo.HasEverEnrolled(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, ever)

	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE course_id").
		WithArgs("c1", "s2").
		WillReturnError(sql.ErrNoRows)
	ever, err = repo.HasEverEnrolled(context.Background(), "c1", "s2")
	require.NoError(t, err)
	assert.False(t, ever)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteByCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("DELETE FROM enrollments WHERE course_id").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeleteByCourse(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
