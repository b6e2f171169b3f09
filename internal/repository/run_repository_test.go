package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/coresched/internal/models"
)

func newRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestRunRepositoryCreateGeneratesIDAndDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_runs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.TimetableRun{ProgramID: "prog-1", SolverVersion: "v1"}
	err := repo.Create(context.Background(), run)

	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusCreated, run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryFindByIDReturnsRun(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "program_id", "academic_year_id", "status", "seed", "solver_version",
		"parameters", "notes", "objective_score", "created_at", "updated_at",
	}).AddRow("run-1", "prog-1", nil, "OPTIMAL", nil, "v1", nil, nil, 12.5, time.Time{}, time.Time{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, program_id, academic_year_id, status, seed, solver_version, parameters, notes, objective_score, created_at, updated_at FROM timetable_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.FindByID(context.Background(), "run-1")

	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, models.RunStatus("OPTIMAL"), run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryFindByIDWrapsNoRows(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, program_id, academic_year_id, status, seed, solver_version, parameters, notes, objective_score, created_at, updated_at FROM timetable_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	run, err := repo.FindByID(context.Background(), "missing")

	assert.Nil(t, run)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryReplaceEntriesDeletesThenInsertsInTransaction(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_entries WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entries := []models.TimetableEntry{
		{RunID: "run-1", AcademicYearID: "year-1", SectionID: "sec-1", SubjectID: "sub-1", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-1"},
	}
	err := repo.ReplaceEntries(context.Background(), "run-1", entries)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryReplaceEntriesRollsBackOnDeleteError(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_entries WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.ReplaceEntries(context.Background(), "run-1", nil)

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
