package service

import (
	"encoding/json"

	"github.com/uniplan/coresched/internal/coresched/capacity"
	"github.com/uniplan/coresched/internal/coresched/diagnose"
	"github.com/uniplan/coresched/internal/coresched/validate"
	"github.com/uniplan/coresched/internal/dto"
	"github.com/uniplan/coresched/internal/models"
)

func toConflictViews(conflicts []validate.Conflict) []dto.ConflictView {
	out := make([]dto.ConflictView, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, dto.ConflictView{
			Severity:     string(c.Severity),
			ConflictType: c.ConflictType,
			Message:      c.Message,
			SectionID:    c.SectionID,
			TeacherID:    c.TeacherID,
			SubjectID:    c.SubjectID,
			RoomID:       c.RoomID,
			SlotID:       c.SlotID,
			Metadata:     c.Metadata,
		})
	}
	return out
}

func conflictModelToView(c models.TimetableConflict) dto.ConflictView {
	view := dto.ConflictView{
		ID:           c.ID,
		Severity:     string(c.Severity),
		ConflictType: c.ConflictType,
		Message:      c.Message,
		SectionID:    c.SectionID,
		TeacherID:    c.TeacherID,
		SubjectID:    c.SubjectID,
		RoomID:       c.RoomID,
		SlotID:       c.SlotID,
	}
	if len(c.Metadata) > 0 {
		var meta map[string]interface{}
		if json.Unmarshal(c.Metadata, &meta) == nil {
			view.Metadata = meta
		}
	}
	return view
}

func conflictModelsToViews(conflicts []models.TimetableConflict) []dto.ConflictView {
	out := make([]dto.ConflictView, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictModelToView(c))
	}
	return out
}

func toDiagnosticViews(diags []diagnose.Diagnostic) []dto.DiagnosticView {
	out := make([]dto.DiagnosticView, 0, len(diags))
	for _, d := range diags {
		out = append(out, dto.DiagnosticView{Type: d.Type, Message: d.Message, Payload: d.Payload})
	}
	return out
}

func toSolverStatsView(s models.SolverStats) dto.SolverStatsView {
	return dto.SolverStatsView{
		StatusName:  s.StatusName,
		WallTimeMs:  s.WallTime.Milliseconds(),
		Branches:    s.Branches,
		Conflicts:   s.Conflicts,
		WorkersUsed: s.WorkersUsed,
	}
}

func toTeacherBudgetViews(rows []capacity.TeacherBudget) []dto.TeacherBudgetView {
	out := make([]dto.TeacherBudgetView, 0, len(rows))
	for _, b := range rows {
		out = append(out, dto.TeacherBudgetView{
			TeacherID:  b.TeacherID,
			Required:   b.Required,
			Available:  b.Available,
			Overloaded: b.Overloaded(),
		})
	}
	return out
}

func toRoomBudgetViews(rows []capacity.RoomTypeBudget) []dto.RoomBudgetView {
	out := make([]dto.RoomBudgetView, 0, len(rows))
	for _, b := range rows {
		out = append(out, dto.RoomBudgetView{
			RoomType:  string(b.RoomType),
			Required:  b.Required,
			Available: b.Available,
			Scarce:    b.Scarce(),
		})
	}
	return out
}

func toSectionBudgetViews(rows []capacity.SectionBudget) []dto.SectionBudgetView {
	out := make([]dto.SectionBudgetView, 0, len(rows))
	for _, b := range rows {
		out = append(out, dto.SectionBudgetView{
			SectionID: b.SectionID,
			Required:  b.Required,
			Available: b.Available,
			Deficit:   b.Deficit(),
		})
	}
	return out
}

func toRelaxationViews(rows []capacity.Relaxation) []dto.RelaxationView {
	out := make([]dto.RelaxationView, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.RelaxationView{
			TeacherID:          r.TeacherID,
			CurrentMaxPerDay:   r.CurrentMaxPerDay,
			SuggestedMaxPerDay: r.SuggestedMaxPerDay,
		})
	}
	return out
}

func toEntryView(e models.TimetableEntry) dto.EntryView {
	return dto.EntryView{
		ID:              e.ID,
		SectionID:       e.SectionID,
		SubjectID:       e.SubjectID,
		TeacherID:       e.TeacherID,
		RoomID:          e.RoomID,
		SlotID:          e.SlotID,
		CombinedClassID: e.CombinedClassID,
		ElectiveBlockID: e.ElectiveBlockID,
	}
}

func toRunView(r models.TimetableRun) dto.RunView {
	return dto.RunView{
		ID:             r.ID,
		ProgramID:      r.ProgramID,
		AcademicYearID: r.AcademicYearID,
		Status:         string(r.Status),
		ObjectiveScore: r.ObjectiveScore,
		CreatedAt:      r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
