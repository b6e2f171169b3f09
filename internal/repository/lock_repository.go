package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniplan/coresched/internal/models"
)

// FixedEntryRepository manages persistence for ordinary-room hard locks.
type FixedEntryRepository struct {
	db *sqlx.DB
}

// NewFixedEntryRepository constructs a new fixed-entry repository.
func NewFixedEntryRepository(db *sqlx.DB) *FixedEntryRepository {
	return &FixedEntryRepository{db: db}
}

// Upsert inserts a fixed entry, or updates it in place when ID is already set.
func (r *FixedEntryRepository) Upsert(ctx context.Context, entry *models.FixedTimetableEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `
INSERT INTO fixed_timetable_entries (id, section_id, subject_id, teacher_id, room_id, slot_id, is_active)
VALUES (:id, :section_id, :subject_id, :teacher_id, :room_id, :slot_id, :is_active)
ON CONFLICT (id) DO UPDATE
SET section_id = EXCLUDED.section_id,
    subject_id = EXCLUDED.subject_id,
    teacher_id = EXCLUDED.teacher_id,
    room_id    = EXCLUDED.room_id,
    slot_id    = EXCLUDED.slot_id,
    is_active  = EXCLUDED.is_active`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert fixed entry: %w", err)
	}
	return nil
}

// Delete removes a fixed entry record.
func (r *FixedEntryRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fixed_timetable_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete fixed entry: %w", err)
	}
	return nil
}

// FindByID returns a fixed entry by id.
func (r *FixedEntryRepository) FindByID(ctx context.Context, id string) (*models.FixedTimetableEntry, error) {
	const query = `SELECT id, section_id, subject_id, teacher_id, room_id, slot_id, is_active FROM fixed_timetable_entries WHERE id = $1`
	var out models.FixedTimetableEntry
	if err := r.db.GetContext(ctx, &out, query, id); err != nil {
		return nil, fmt.Errorf("find fixed entry: %w", err)
	}
	return &out, nil
}

// SpecialAllotmentRepository manages persistence for special-room hard locks.
type SpecialAllotmentRepository struct {
	db *sqlx.DB
}

// NewSpecialAllotmentRepository constructs a new special-allotment repository.
func NewSpecialAllotmentRepository(db *sqlx.DB) *SpecialAllotmentRepository {
	return &SpecialAllotmentRepository{db: db}
}

// Upsert inserts a special allotment, or updates it in place when ID is set.
func (r *SpecialAllotmentRepository) Upsert(ctx context.Context, allotment *models.SpecialAllotment) error {
	if allotment.ID == "" {
		allotment.ID = uuid.NewString()
	}
	const query = `
INSERT INTO special_allotments (id, section_id, subject_id, teacher_id, room_id, slot_id, is_active, reason)
VALUES (:id, :section_id, :subject_id, :teacher_id, :room_id, :slot_id, :is_active, :reason)
ON CONFLICT (id) DO UPDATE
SET section_id = EXCLUDED.section_id,
    subject_id = EXCLUDED.subject_id,
    teacher_id = EXCLUDED.teacher_id,
    room_id    = EXCLUDED.room_id,
    slot_id    = EXCLUDED.slot_id,
    is_active  = EXCLUDED.is_active,
    reason     = EXCLUDED.reason`
	if _, err := r.db.NamedExecContext(ctx, query, allotment); err != nil {
		return fmt.Errorf("upsert special allotment: %w", err)
	}
	return nil
}

// Delete removes a special allotment record.
func (r *SpecialAllotmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM special_allotments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete special allotment: %w", err)
	}
	return nil
}

// FindByID returns a special allotment by id.
func (r *SpecialAllotmentRepository) FindByID(ctx context.Context, id string) (*models.SpecialAllotment, error) {
	const query = `SELECT id, section_id, subject_id, teacher_id, room_id, slot_id, is_active, reason FROM special_allotments WHERE id = $1`
	var out models.SpecialAllotment
	if err := r.db.GetContext(ctx, &out, query, id); err != nil {
		return nil, fmt.Errorf("find special allotment: %w", err)
	}
	return &out, nil
}

// SectionBreakRepository manages per-run section slot exclusions.
type SectionBreakRepository struct {
	db *sqlx.DB
}

// NewSectionBreakRepository constructs a new section-break repository.
func NewSectionBreakRepository(db *sqlx.DB) *SectionBreakRepository {
	return &SectionBreakRepository{db: db}
}

// UpsertBatch inserts section breaks for a run, ignoring duplicates.
func (r *SectionBreakRepository) UpsertBatch(ctx context.Context, breaks []models.SectionBreak) error {
	if len(breaks) == 0 {
		return nil
	}
	const query = `
INSERT INTO section_breaks (run_id, section_id, slot_id)
VALUES (:run_id, :section_id, :slot_id)
ON CONFLICT (run_id, section_id, slot_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, breaks); err != nil {
		return fmt.Errorf("upsert section breaks: %w", err)
	}
	return nil
}
