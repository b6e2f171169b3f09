package dto

// GenerateRequest scopes a validation + capacity analysis pass, without
// invoking the solver.
type GenerateRequest struct {
	ProgramID      string  `json:"programId" validate:"required"`
	AcademicYearID *string `json:"academicYearId,omitempty"`
}

// GenerateResponse reports every conflict validation raised and the budget
// report capacity analysis computed, so a caller can fix curriculum data
// before attempting a solve.
type GenerateResponse struct {
	Conflicts     []ConflictView      `json:"conflicts"`
	HasBlocking   bool                `json:"hasBlockingError"`
	TeacherBudget []TeacherBudgetView `json:"teacherBudget"`
	RoomBudget    []RoomBudgetView    `json:"roomBudget"`
	SectionBudget []SectionBudgetView `json:"sectionBudget"`
	Relaxations   []RelaxationView    `json:"relaxations"`
}

// SolveRequest kicks off a full C1-C6 solve attempt for one run.
type SolveRequest struct {
	ProgramID              string                `json:"programId" validate:"required"`
	AcademicYearID         *string               `json:"academicYearId,omitempty"`
	Seed                   int64                 `json:"seed"`
	MaxTimeSeconds         int                   `json:"maxTimeSeconds" validate:"omitempty,min=1,max=3600"`
	Workers                int                   `json:"workers" validate:"omitempty,min=1,max=64"`
	RequireOptimal         bool                  `json:"requireOptimal"`
	RelaxTeacherLoadLimits bool                  `json:"relaxTeacherLoadLimits"`
	Notes                  *string               `json:"notes,omitempty"`
	SectionBreaks          []SectionBreakRequest `json:"sectionBreaks,omitempty"`
}

// SectionBreakRequest excludes one slot from one section for this run only —
// a one-off holiday or event that shouldn't shrink the section's window
// permanently.
type SectionBreakRequest struct {
	SectionID string `json:"sectionId" validate:"required"`
	SlotID    string `json:"slotId" validate:"required"`
}

// SolveResponse is the outcome of one solve attempt.
type SolveResponse struct {
	RunID             string           `json:"runId"`
	Status            string           `json:"status"`
	Objective         *float64         `json:"objective,omitempty"`
	Conflicts         []ConflictView   `json:"conflicts"`
	Diagnostics       []DiagnosticView `json:"diagnostics,omitempty"`
	Stats             SolverStatsView  `json:"stats"`
	EntriesWritten    int              `json:"entriesWritten"`
	MinimalRelaxation []RelaxationView `json:"minimalRelaxation,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// SolveAsyncResponse acknowledges an enqueued solve.
type SolveAsyncResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// ConflictView is the API shape of a models.TimetableConflict.
type ConflictView struct {
	ID           string                 `json:"id,omitempty"`
	Severity     string                 `json:"severity"`
	ConflictType string                 `json:"conflictType"`
	Message      string                 `json:"message"`
	SectionID    *string                `json:"sectionId,omitempty"`
	TeacherID    *string                `json:"teacherId,omitempty"`
	SubjectID    *string                `json:"subjectId,omitempty"`
	RoomID       *string                `json:"roomId,omitempty"`
	SlotID       *string                `json:"slotId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// DiagnosticView is the API shape of a diagnose.Diagnostic.
type DiagnosticView struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SolverStatsView is the API shape of models.SolverStats.
type SolverStatsView struct {
	StatusName  string `json:"statusName"`
	WallTimeMs  int64  `json:"wallTimeMs"`
	Branches    int64  `json:"branches"`
	Conflicts   int64  `json:"conflicts"`
	WorkersUsed int    `json:"workersUsed"`
}

// TeacherBudgetView is the API shape of a capacity.TeacherBudget.
type TeacherBudgetView struct {
	TeacherID  string `json:"teacherId"`
	Required   int    `json:"required"`
	Available  int    `json:"available"`
	Overloaded bool   `json:"overloaded"`
}

// RoomBudgetView is the API shape of a capacity.RoomTypeBudget.
type RoomBudgetView struct {
	RoomType  string `json:"roomType"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Scarce    bool   `json:"scarce"`
}

// SectionBudgetView is the API shape of a capacity.SectionBudget.
type SectionBudgetView struct {
	SectionID string `json:"sectionId"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Deficit   bool   `json:"deficit"`
}

// RelaxationView is the API shape of a capacity.Relaxation.
type RelaxationView struct {
	TeacherID          string `json:"teacherId"`
	CurrentMaxPerDay   int    `json:"currentMaxPerDay"`
	SuggestedMaxPerDay int    `json:"suggestedMaxPerDay"`
}

// EntryView is the API shape of a models.TimetableEntry.
type EntryView struct {
	ID              string  `json:"id"`
	SectionID       string  `json:"sectionId"`
	SubjectID       string  `json:"subjectId"`
	TeacherID       string  `json:"teacherId"`
	RoomID          string  `json:"roomId"`
	SlotID          string  `json:"slotId"`
	CombinedClassID *string `json:"combinedClassId,omitempty"`
	ElectiveBlockID *string `json:"electiveBlockId,omitempty"`
}

// RunView is the API shape of a models.TimetableRun.
type RunView struct {
	ID             string   `json:"id"`
	ProgramID      string   `json:"programId"`
	AcademicYearID *string  `json:"academicYearId,omitempty"`
	Status         string   `json:"status"`
	ObjectiveScore *float64 `json:"objectiveScore,omitempty"`
	CreatedAt      string   `json:"createdAt"`
}

// UpsertFixedEntryRequest creates or updates a hard lock in an ordinary room.
type UpsertFixedEntryRequest struct {
	ID        string `json:"id,omitempty"`
	SectionID string `json:"sectionId" validate:"required"`
	SubjectID string `json:"subjectId" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
	SlotID    string `json:"slotId" validate:"required"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

// UpsertSpecialAllotmentRequest creates or updates a hard lock in a special room.
type UpsertSpecialAllotmentRequest struct {
	ID        string  `json:"id,omitempty"`
	SectionID string  `json:"sectionId" validate:"required"`
	SubjectID string  `json:"subjectId" validate:"required"`
	TeacherID string  `json:"teacherId" validate:"required"`
	RoomID    string  `json:"roomId" validate:"required"`
	SlotID    string  `json:"slotId" validate:"required"`
	IsActive  *bool   `json:"isActive,omitempty"`
	Reason    *string `json:"reason,omitempty"`
}
