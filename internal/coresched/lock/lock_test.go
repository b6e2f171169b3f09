package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

func baseSnapshot() *snapshot.Snapshot {
	section := models.Section{ID: "sec-1", AcademicYearID: "year-1"}
	slots := []models.TimeSlot{
		{ID: "slot-0", DayOfWeek: 0, SlotIndex: 0},
		{ID: "slot-1", DayOfWeek: 0, SlotIndex: 1},
		{ID: "slot-2", DayOfWeek: 0, SlotIndex: 2},
	}
	return &snapshot.Snapshot{
		Sections: []models.Section{section},
		Slots:    slots,
		SectionByID: map[string]models.Section{
			section.ID: section,
		},
		SubjectByID: map[string]models.Subject{
			"sub-theory": {ID: "sub-theory", SubjectType: models.SubjectTypeTheory, SessionsPerWeek: 2},
			"sub-lab":    {ID: "sub-lab", SubjectType: models.SubjectTypeLab, SessionsPerWeek: 1, LabBlockSizeSlots: 2},
		},
		SlotByID: map[string]models.TimeSlot{
			"slot-0": slots[0], "slot-1": slots[1], "slot-2": slots[2],
		},
		AllowedSlots: map[string]map[string]bool{
			"sec-1": {"slot-0": true, "slot-1": true, "slot-2": true},
		},
	}
}

func TestApplyFixedEntryRemovesSlotAndTeacherAvailability(t *testing.T) {
	snap := baseSnapshot()
	snap.FixedEntries = []models.FixedTimetableEntry{
		{SectionID: "sec-1", SubjectID: "sub-theory", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-0", IsActive: true},
	}
	required := map[string]map[string]int{"sec-1": {"sub-theory": 2}}

	ep := Apply(snap, required, nil)

	assert.False(t, ep.Infeasible)
	assert.False(t, ep.AllowedSlotsBySection["sec-1"]["slot-0"])
	assert.True(t, ep.AllowedSlotsBySection["sec-1"]["slot-1"])
	assert.True(t, ep.TeacherDisallowedSlot["teacher-1"]["slot-0"])
	assert.Equal(t, 1, ep.RemainingSessions["sec-1"]["sub-theory"])
	require.Len(t, ep.PreEntries, 1)
	assert.Equal(t, "year-1", ep.PreEntries[0].AcademicYearID)
}

func TestApplyLabFixedEntryLocksContiguousBlock(t *testing.T) {
	snap := baseSnapshot()
	snap.FixedEntries = []models.FixedTimetableEntry{
		{SectionID: "sec-1", SubjectID: "sub-lab", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-0", IsActive: true},
	}
	required := map[string]map[string]int{"sec-1": {"sub-lab": 1}}

	ep := Apply(snap, required, nil)

	assert.False(t, ep.AllowedSlotsBySection["sec-1"]["slot-0"])
	assert.False(t, ep.AllowedSlotsBySection["sec-1"]["slot-1"])
	assert.True(t, ep.AllowedSlotsBySection["sec-1"]["slot-2"])
	require.Len(t, ep.PreEntries, 2)
}

func TestApplyInactiveFixedEntryIsIgnored(t *testing.T) {
	snap := baseSnapshot()
	snap.FixedEntries = []models.FixedTimetableEntry{
		{SectionID: "sec-1", SubjectID: "sub-theory", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-0", IsActive: false},
	}
	required := map[string]map[string]int{"sec-1": {"sub-theory": 2}}

	ep := Apply(snap, required, nil)

	assert.True(t, ep.AllowedSlotsBySection["sec-1"]["slot-0"])
	assert.Empty(t, ep.PreEntries)
}

func TestApplyOverLockedSectionMarksInfeasible(t *testing.T) {
	snap := baseSnapshot()
	snap.FixedEntries = []models.FixedTimetableEntry{
		{SectionID: "sec-1", SubjectID: "sub-theory", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-0", IsActive: true},
		{SectionID: "sec-1", SubjectID: "sub-theory", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-1", IsActive: true},
	}
	required := map[string]map[string]int{"sec-1": {"sub-theory": 1}}

	ep := Apply(snap, required, nil)

	assert.True(t, ep.Infeasible)
	assert.Contains(t, ep.InfeasibleReason, "sec-1")
}

func TestApplySpecialAllotmentReservesRoom(t *testing.T) {
	snap := baseSnapshot()
	snap.SpecialAllotments = []models.SpecialAllotment{
		{SectionID: "sec-1", SubjectID: "sub-theory", TeacherID: "teacher-1", RoomID: "special-room", SlotID: "slot-0", IsActive: true},
	}
	required := map[string]map[string]int{"sec-1": {"sub-theory": 2}}

	ep := Apply(snap, required, nil)

	require.Len(t, ep.ReservedRooms, 1)
	assert.Equal(t, "special-room", ep.ReservedRooms[0].RoomID)
}
