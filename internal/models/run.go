package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableRun owns every TimetableEntry and TimetableConflict it produces.
// Re-solving replaces entries under the same run id.
type TimetableRun struct {
	ID             string         `db:"id" json:"id"`
	ProgramID      string         `db:"program_id" json:"program_id"`
	AcademicYearID *string        `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Status         RunStatus      `db:"status" json:"status"`
	Seed           *int64         `db:"seed" json:"seed,omitempty"`
	SolverVersion  string         `db:"solver_version" json:"solver_version"`
	Parameters     types.JSONText `db:"parameters" json:"parameters"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	ObjectiveScore *float64       `db:"objective_score" json:"objective_score,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// TimetableEntry is one concrete (section, subject, teacher, room, slot)
// placement produced by a run.
type TimetableEntry struct {
	ID               string  `db:"id" json:"id"`
	RunID            string  `db:"run_id" json:"run_id"`
	AcademicYearID   string  `db:"academic_year_id" json:"academic_year_id"`
	SectionID        string  `db:"section_id" json:"section_id"`
	SubjectID        string  `db:"subject_id" json:"subject_id"`
	TeacherID        string  `db:"teacher_id" json:"teacher_id"`
	RoomID           string  `db:"room_id" json:"room_id"`
	SlotID           string  `db:"slot_id" json:"slot_id"`
	CombinedClassID  *string `db:"combined_class_id" json:"combined_class_id,omitempty"`
	ElectiveBlockID  *string `db:"elective_block_id" json:"elective_block_id,omitempty"`
}

// TimetableConflict is one typed row surfaced by validation, driving, or
// diagnostics, keyed by the run that produced it.
type TimetableConflict struct {
	ID           string         `db:"id" json:"id"`
	RunID        string         `db:"run_id" json:"run_id"`
	Severity     ConflictSeverity `db:"severity" json:"severity"`
	ConflictType string         `db:"conflict_type" json:"conflict_type"`
	Message      string         `db:"message" json:"message"`
	SectionID    *string        `db:"section_id" json:"section_id,omitempty"`
	TeacherID    *string        `db:"teacher_id" json:"teacher_id,omitempty"`
	SubjectID    *string        `db:"subject_id" json:"subject_id,omitempty"`
	RoomID       *string        `db:"room_id" json:"room_id,omitempty"`
	SlotID       *string        `db:"slot_id" json:"slot_id,omitempty"`
	Metadata     types.JSONText `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// SolverStats captures engine-reported diagnostics for a solve attempt.
type SolverStats struct {
	StatusName   string        `json:"status_name"`
	WallTime     time.Duration `json:"wall_time_ns"`
	Branches     int64         `json:"branches"`
	Conflicts    int64         `json:"conflicts"`
	WorkersUsed  int           `json:"workers_used"`
}
