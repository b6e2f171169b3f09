package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

func minimalSnapshot() *snapshot.Snapshot {
	section := models.Section{ID: "sec-1", IsActive: true}
	theory := models.Subject{ID: "sub-theory", SubjectType: models.SubjectTypeTheory, SessionsPerWeek: 4, MaxPerDay: 1}
	lab := models.Subject{ID: "sub-lab", SubjectType: models.SubjectTypeLab, SessionsPerWeek: 2, LabBlockSizeSlots: 2, MaxPerDay: 1}
	teacher := models.Teacher{ID: "teacher-1", MaxPerDay: 1, MaxPerWeek: 5}
	classroom := models.Room{ID: "room-1", RoomType: models.RoomTypeClassroom, IsActive: true}
	lab1 := models.Room{ID: "room-lab", RoomType: models.RoomTypeLab, IsActive: true}

	allowed := map[string]bool{}
	for day := 0; day < models.DaysPerWeek; day++ {
		for idx := 0; idx < 5; idx++ {
			allowed["slot-d"+string(rune('0'+day))+"-i"+string(rune('0'+idx))] = true
		}
	}

	return &snapshot.Snapshot{
		Sections:    []models.Section{section},
		Subjects:    []models.Subject{theory, lab},
		Teachers:    []models.Teacher{teacher},
		Rooms:       []models.Room{classroom, lab1},
		Slots: []models.TimeSlot{
			{ID: "s-0-0", DayOfWeek: 0, SlotIndex: 0},
			{ID: "s-0-1", DayOfWeek: 0, SlotIndex: 1},
			{ID: "s-1-0", DayOfWeek: 1, SlotIndex: 0},
		},
		SubjectByID: map[string]models.Subject{theory.ID: theory, lab.ID: lab},
		TeacherByID: map[string]models.Teacher{teacher.ID: teacher},
		SectionSubjects: map[string][]string{
			section.ID: {theory.ID, lab.ID},
		},
		RequiredTeacher: map[string]map[string]string{
			section.ID: {theory.ID: teacher.ID, lab.ID: teacher.ID},
		},
		AllowedSlots: map[string]map[string]bool{
			section.ID: allowed,
		},
	}
}

func TestAnalyzeByTeacherComputesOverload(t *testing.T) {
	snap := minimalSnapshot()

	report := Analyze(snap, nil)

	require.Len(t, report.ByTeacher, 1)
	budget := report.ByTeacher[0]
	// theory: 4 slots + lab: 2 sessions * 2 block size = 4 slots -> required 8
	assert.Equal(t, 8, budget.Required)
	// MaxPerDay(1) * DaysPerWeek(6) = 6 available
	assert.Equal(t, 6, budget.Available)
	assert.True(t, budget.Overloaded())
}

func TestAnalyzeByRoomTypeSplitsTheoryAndLab(t *testing.T) {
	snap := minimalSnapshot()

	report := Analyze(snap, nil)

	var theoryBudget, labBudget RoomTypeBudget
	for _, b := range report.ByRoomType {
		switch b.RoomType {
		case models.RoomTypeClassroom:
			theoryBudget = b
		case models.RoomTypeLab:
			labBudget = b
		}
	}
	assert.Equal(t, 4, theoryBudget.Required)
	assert.Equal(t, 4, labBudget.Required)
}

func TestAnalyzeBySectionReportsDeficitWhenWindowTooSmall(t *testing.T) {
	snap := minimalSnapshot()
	snap.AllowedSlots["sec-1"] = map[string]bool{"only-slot": true}

	report := Analyze(snap, nil)

	require.Len(t, report.BySection, 1)
	assert.True(t, report.BySection[0].Deficit())
}

func TestAnalyzeRelaxationSuggestsHigherMaxPerDay(t *testing.T) {
	snap := minimalSnapshot()

	report := Analyze(snap, nil)

	require.Len(t, report.Relaxations, 1)
	r := report.Relaxations[0]
	assert.Equal(t, "teacher-1", r.TeacherID)
	assert.Equal(t, 1, r.CurrentMaxPerDay)
	assert.True(t, r.SuggestedMaxPerDay > r.CurrentMaxPerDay)
	// 8 required / 6 days rounds up to 2 per day
	assert.Equal(t, 2, r.SuggestedMaxPerDay)
}
