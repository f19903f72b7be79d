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

func newCourseMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCourseRepositoryFindByIDAttachesPrerequisites(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "credits", "capacity", "department_id", "created_at", "updated_at"}).
		AddRow("c2", "CS201", "Data Structures", 4, 25, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, code, name, credits, capacity, department_id, created_at, updated_at FROM courses WHERE id").
		WithArgs("c2").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT prerequisite_id FROM course_prerequisites WHERE course_id").
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows([]string{"prerequisite_id"}).AddRow("c1"))

	course, err := repo.FindByID(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "CS201", course.Code)
	assert.Equal(t, []string{"c1"}, course.Prerequisites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT 1 FROM courses WHERE code").
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.ExistsByCode(context.Background(), "CS101", "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM courses WHERE code").
		WithArgs("CS999").
		WillReturnError(sql.ErrNoRows)
	exists, err = repo.ExistsByCode(context.Background(), "CS999", "")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateWithPrerequisites(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WithArgs(sqlmock.AnyArg(), "CS201", "Data Structures", 4, 25, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM course_prerequisites WHERE course_id").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO course_prerequisites").
		WithArgs(sqlmock.AnyArg(), "c1", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{Code: "CS201", Name: "Data Structures", Credits: 4, Capacity: 25, Prerequisites: []string{"c1"}}
	require.NoError(t, repo.Create(context.Background(), course))
	assert.NotEmpty(t, course.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("DELETE FROM course_prerequisites WHERE course_id").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM courses WHERE id").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryExistingIDs(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT id FROM courses WHERE id IN").
		WithArgs("c1", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))

	existing, err := repo.ExistingIDs(context.Background(), []string{"c1", "ghost"})
	require.NoError(t, err)
	assert.True(t, existing["c1"])
	assert.False(t, existing["ghost"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryExistingIDsEmptyInput(t *testing.T) {
	db, _, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	existing, err := repo.ExistingIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}
