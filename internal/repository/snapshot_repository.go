package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniplan/coresched/internal/models"
)

// SnapshotRepository implements snapshot.Repositories against Postgres. It is
// the single read surface every solve scope loads before validation,
// capacity analysis, lock pre-application, and model building run.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs a new snapshot repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// in expands a slice-valued IN clause and rebinds it to the driver's
// placeholder style, matching how every scoped list query here is built.
func (r *SnapshotRepository) in(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return r.db.Rebind(q), a, nil
}

func (r *SnapshotRepository) ListSections(ctx context.Context, programID string, academicYearID *string) ([]models.Section, error) {
	query := `SELECT id, program_id, academic_year_id, code, strength, track, is_active FROM sections WHERE program_id = $1 AND is_active = true`
	args := []interface{}{programID}
	if academicYearID != nil {
		query += ` AND academic_year_id = $2`
		args = append(args, *academicYearID)
	}
	var out []models.Section
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSubjects(ctx context.Context, programID string) ([]models.Subject, error) {
	const query = `SELECT id, program_id, academic_year_id, code, subject_type, sessions_per_week, max_per_day, lab_block_size_slots, is_active FROM subjects WHERE program_id = $1 AND is_active = true`
	var out []models.Subject
	if err := r.db.SelectContext(ctx, &out, query, programID); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT id, code, full_name, weekly_off_day, max_per_day, max_per_week, max_continuous, is_active FROM teachers WHERE is_active = true`
	var out []models.Teacher
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, code, room_type, capacity, is_active, is_special, special_note FROM rooms WHERE is_active = true`
	var out []models.Room
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error) {
	const query = `SELECT id, day_of_week, slot_index, start_time, end_time FROM time_slots ORDER BY day_of_week, slot_index`
	var out []models.TimeSlot
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSectionTimeWindows(ctx context.Context, sectionIDs []string) ([]models.SectionTimeWindow, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT id, section_id, day_of_week, start_slot_index, end_slot_index FROM section_time_windows WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build section time windows query: %w", err)
	}
	var out []models.SectionTimeWindow
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list section time windows: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSectionBreaks(ctx context.Context, runID string) ([]models.SectionBreak, error) {
	const query = `SELECT run_id, section_id, slot_id FROM section_breaks WHERE run_id = $1`
	var out []models.SectionBreak
	if err := r.db.SelectContext(ctx, &out, query, runID); err != nil {
		return nil, fmt.Errorf("list section breaks: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListTeacherSubjectSections(ctx context.Context, sectionIDs []string) ([]models.TeacherSubjectSection, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT teacher_id, subject_id, section_id, is_active FROM teacher_subject_sections WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build teacher subject sections query: %w", err)
	}
	var out []models.TeacherSubjectSection
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher subject sections: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListFixedEntries(ctx context.Context, sectionIDs []string) ([]models.FixedTimetableEntry, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT id, section_id, subject_id, teacher_id, room_id, slot_id, is_active FROM fixed_timetable_entries WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build fixed entries query: %w", err)
	}
	var out []models.FixedTimetableEntry
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list fixed entries: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSpecialAllotments(ctx context.Context, sectionIDs []string) ([]models.SpecialAllotment, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT id, section_id, subject_id, teacher_id, room_id, slot_id, is_active, reason FROM special_allotments WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build special allotments query: %w", err)
	}
	var out []models.SpecialAllotment
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list special allotments: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListElectiveBlocks(ctx context.Context, sectionIDs []string) ([]models.ElectiveBlock, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT DISTINCT eb.id, eb.program_id, eb.academic_year_id, eb.name, eb.code, eb.is_active
FROM elective_blocks eb
JOIN section_elective_blocks seb ON seb.block_id = eb.id
WHERE seb.section_id IN (?) AND eb.is_active = true`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build elective blocks query: %w", err)
	}
	var out []models.ElectiveBlock
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list elective blocks: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListElectiveBlockSubjects(ctx context.Context, blockIDs []string) ([]models.ElectiveBlockSubject, error) {
	if len(blockIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT block_id, subject_id, teacher_id FROM elective_block_subjects WHERE block_id IN (?)`, blockIDs)
	if err != nil {
		return nil, fmt.Errorf("build elective block subjects query: %w", err)
	}
	var out []models.ElectiveBlockSubject
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list elective block subjects: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSectionElectiveBlocks(ctx context.Context, sectionIDs []string) ([]models.SectionElectiveBlock, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT section_id, block_id FROM section_elective_blocks WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build section elective blocks query: %w", err)
	}
	var out []models.SectionElectiveBlock
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list section elective blocks: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListCombinedGroups(ctx context.Context, sectionIDs []string) ([]models.CombinedGroup, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT DISTINCT cg.id, cg.academic_year_id, cg.subject_id, cg.teacher_id
FROM combined_groups cg
JOIN combined_group_sections cgs ON cgs.group_id = cg.id
WHERE cgs.section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build combined groups query: %w", err)
	}
	var out []models.CombinedGroup
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list combined groups: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListCombinedGroupSections(ctx context.Context, groupIDs []string) ([]models.CombinedGroupSection, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT group_id, section_id FROM combined_group_sections WHERE group_id IN (?)`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("build combined group sections query: %w", err)
	}
	var out []models.CombinedGroupSection
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list combined group sections: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSectionSubjects(ctx context.Context, sectionIDs []string) ([]models.SectionSubject, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT section_id, subject_id FROM section_subjects WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build section subjects query: %w", err)
	}
	var out []models.SectionSubject
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list section subjects: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListTrackSubjects(ctx context.Context, programID string) ([]models.TrackSubject, error) {
	const query = `SELECT program_id, academic_year_id, track, subject_id, is_elective, sessions_override FROM track_subjects WHERE program_id = $1`
	var out []models.TrackSubject
	if err := r.db.SelectContext(ctx, &out, query, programID); err != nil {
		return nil, fmt.Errorf("list track subjects: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) ListSectionElectives(ctx context.Context, sectionIDs []string) ([]models.SectionElective, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`SELECT section_id, subject_id FROM section_electives WHERE section_id IN (?)`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build section electives query: %w", err)
	}
	var out []models.SectionElective
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list section electives: %w", err)
	}
	return out, nil
}
