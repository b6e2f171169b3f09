package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniplan/coresched/internal/models"
)

// RunRepository manages timetable run lifecycle and the entries/conflicts
// attached to each run. A re-solve replaces a run's entries and conflicts
// wholesale rather than diffing them.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create persists a new run in CREATED status.
func (r *RunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = models.RunStatusCreated
	}
	const query = `
INSERT INTO timetable_runs (id, program_id, academic_year_id, status, seed, solver_version, parameters, notes, objective_score, created_at, updated_at)
VALUES (:id, :program_id, :academic_year_id, :status, :seed, :solver_version, :parameters, :notes, :objective_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateStatus transitions a run's terminal status and objective score.
func (r *RunRepository) UpdateStatus(ctx context.Context, runID string, status models.RunStatus, objective *float64) error {
	const query = `UPDATE timetable_runs SET status = $2, objective_score = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, runID, status, objective, time.Now().UTC()); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// FindByID returns a run by id.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, program_id, academic_year_id, status, seed, solver_version, parameters, notes, objective_score, created_at, updated_at FROM timetable_runs WHERE id = $1`
	var out models.TimetableRun
	if err := r.db.GetContext(ctx, &out, query, id); err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return &out, nil
}

// ListByProgram returns runs for a program, most recent first.
func (r *RunRepository) ListByProgram(ctx context.Context, programID string) ([]models.TimetableRun, error) {
	const query = `SELECT id, program_id, academic_year_id, status, seed, solver_version, parameters, notes, objective_score, created_at, updated_at
FROM timetable_runs WHERE program_id = $1 ORDER BY created_at DESC`
	var out []models.TimetableRun
	if err := r.db.SelectContext(ctx, &out, query, programID); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// ReplaceEntries deletes every entry currently attached to a run and inserts
// the replacement set in a single transaction, so a re-solve never leaves a
// run half-written.
func (r *RunRepository) ReplaceEntries(ctx context.Context, runID string, entries []models.TimetableEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace entries: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM timetable_entries WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear existing entries: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		const insert = `
INSERT INTO timetable_entries (id, run_id, academic_year_id, section_id, subject_id, teacher_id, room_id, slot_id, combined_class_id, elective_block_id)
VALUES (:id, :run_id, :academic_year_id, :section_id, :subject_id, :teacher_id, :room_id, :slot_id, :combined_class_id, :elective_block_id)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, e); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	return tx.Commit()
}

// ReplaceConflicts deletes every conflict currently attached to a run and
// inserts the replacement set.
func (r *RunRepository) ReplaceConflicts(ctx context.Context, runID string, conflicts []models.TimetableConflict) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace conflicts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM timetable_conflicts WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear existing conflicts: %w", err)
	}

	now := time.Now().UTC()
	for i := range conflicts {
		c := &conflicts[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		const insert = `
INSERT INTO timetable_conflicts (id, run_id, severity, conflict_type, message, section_id, teacher_id, subject_id, room_id, slot_id, metadata, created_at)
VALUES (:id, :run_id, :severity, :conflict_type, :message, :section_id, :teacher_id, :subject_id, :room_id, :slot_id, :metadata, :created_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, c); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}

	return tx.Commit()
}

// ListEntries returns every entry for a run, ordered for display by day/slot.
func (r *RunRepository) ListEntries(ctx context.Context, runID string) ([]models.TimetableEntry, error) {
	const query = `
SELECT e.id, e.run_id, e.academic_year_id, e.section_id, e.subject_id, e.teacher_id, e.room_id, e.slot_id, e.combined_class_id, e.elective_block_id
FROM timetable_entries e
JOIN time_slots s ON s.id = e.slot_id
WHERE e.run_id = $1
ORDER BY s.day_of_week, s.slot_index`
	var out []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &out, query, runID); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// ListConflicts returns every conflict for a run, most severe first.
func (r *RunRepository) ListConflicts(ctx context.Context, runID string) ([]models.TimetableConflict, error) {
	const query = `
SELECT id, run_id, severity, conflict_type, message, section_id, teacher_id, subject_id, room_id, slot_id, metadata, created_at
FROM timetable_conflicts
WHERE run_id = $1
ORDER BY CASE severity WHEN 'ERROR' THEN 0 WHEN 'WARN' THEN 1 ELSE 2 END, created_at`
	var out []models.TimetableConflict
	if err := r.db.SelectContext(ctx, &out, query, runID); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return out, nil
}
