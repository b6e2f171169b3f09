package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

func fullSnapshot() *snapshot.Snapshot {
	section := models.Section{ID: "sec-1", Code: "X-1", IsActive: true, Track: models.TrackCore}
	subject := models.Subject{ID: "sub-1", Code: "MATH", SubjectType: models.SubjectTypeTheory, SessionsPerWeek: 2}
	teacher := models.Teacher{ID: "teacher-1", Code: "T1", MaxPerWeek: 10}
	room := models.Room{ID: "room-1", RoomType: models.RoomTypeClassroom, IsActive: true, IsSpecial: false}
	slot := models.TimeSlot{ID: "slot-0", DayOfWeek: 0, SlotIndex: 0}

	return &snapshot.Snapshot{
		Sections: []models.Section{section},
		Subjects: []models.Subject{subject},
		Teachers: []models.Teacher{teacher},
		Rooms:    []models.Room{room},
		Slots:    []models.TimeSlot{slot},

		SectionByID: map[string]models.Section{section.ID: section},
		SubjectByID: map[string]models.Subject{subject.ID: subject},
		TeacherByID: map[string]models.Teacher{teacher.ID: teacher},
		RoomByID:    map[string]models.Room{room.ID: room},
		SlotByID:    map[string]models.TimeSlot{slot.ID: slot},

		Windows: map[string]map[int][]int{
			section.ID: {0: {0, 1, 2}},
		},
		AllowedSlots: map[string]map[string]bool{
			section.ID: {slot.ID: true},
		},
		SectionSubjects: map[string][]string{
			section.ID: {subject.ID},
		},
		RequiredTeacher: map[string]map[string]string{
			section.ID: {subject.ID: teacher.ID},
		},
		TeacherSubjectSections: []models.TeacherSubjectSection{
			{SectionID: section.ID, SubjectID: subject.ID, TeacherID: teacher.ID, IsActive: true},
		},
		SectionElectivePick: map[string]string{},
	}
}

func TestRunCleanSnapshotHasNoBlockingError(t *testing.T) {
	snap := fullSnapshot()

	conflicts := Run(snap, nil)

	assert.False(t, HasBlockingError(conflicts))
}

func TestCheckSchemaPresenceFlagsMissingRoomsAndSlots(t *testing.T) {
	snap := fullSnapshot()
	snap.Rooms = nil
	snap.Slots = nil

	conflicts := checkSchemaPresence(snap)

	types := conflictTypes(conflicts)
	assert.Contains(t, types, "MISSING_TIME_SLOTS")
	assert.Contains(t, types, "MISSING_ROOMS")
}

func TestCheckStrictTeacherAssignmentFlagsMissingAndDuplicate(t *testing.T) {
	snap := fullSnapshot()
	snap.TeacherSubjectSections = nil

	missing := checkStrictTeacherAssignment(snap)
	require.Len(t, missing, 1)
	assert.Equal(t, "MISSING_TEACHER_ASSIGNMENT", missing[0].ConflictType)

	snap2 := fullSnapshot()
	snap2.TeacherSubjectSections = append(snap2.TeacherSubjectSections, models.TeacherSubjectSection{
		SectionID: "sec-1", SubjectID: "sub-1", TeacherID: "teacher-2", IsActive: true,
	})
	dup := checkStrictTeacherAssignment(snap2)
	require.Len(t, dup, 1)
	assert.Equal(t, "DUPLICATE_TEACHER_ASSIGNMENT", dup[0].ConflictType)
}

func TestCheckTeacherWeeklyLoadFlagsOverload(t *testing.T) {
	snap := fullSnapshot()
	snap.Teachers[0].MaxPerWeek = 1
	snap.TeacherByID["teacher-1"] = snap.Teachers[0]

	conflicts := checkTeacherWeeklyLoad(snap)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "TEACHER_LOAD_EXCEEDS_MAX_PER_WEEK", conflicts[0].ConflictType)
	assert.Equal(t, "teacher-1", *conflicts[0].TeacherID)
}

func TestCheckSectionCapacityFlagsOverbookedWindow(t *testing.T) {
	snap := fullSnapshot()
	snap.Subjects[0].SessionsPerWeek = 5
	snap.SubjectByID["sub-1"] = snap.Subjects[0]

	conflicts := checkSectionCapacity(snap)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "SECTION_LOAD_EXCEEDS_WINDOW_CAPACITY", conflicts[0].ConflictType)
}

func TestCheckFixedEntriesFlagsTeacherOffDayAndMismatch(t *testing.T) {
	snap := fullSnapshot()
	offDay := 0
	snap.Teachers[0].WeeklyOffDay = &offDay
	snap.TeacherByID["teacher-1"] = snap.Teachers[0]
	snap.FixedEntries = []models.FixedTimetableEntry{
		{SectionID: "sec-1", SubjectID: "sub-1", TeacherID: "teacher-1", RoomID: "room-1", SlotID: "slot-0", IsActive: true},
	}

	conflicts := checkFixedEntries(snap)

	types := conflictTypes(conflicts)
	assert.Contains(t, types, "FIXED_ENTRY_TEACHER_OFF_DAY")
}

func TestCheckElectiveBlocksFlagsUncoveredAndMismatchedSections(t *testing.T) {
	snap := fullSnapshot()
	elective := models.Subject{ID: "sub-elective", Code: "ELEC", SubjectType: models.SubjectTypeTheory, SessionsPerWeek: 2}
	snap.Subjects = append(snap.Subjects, elective)
	snap.SubjectByID[elective.ID] = elective

	snap.ElectiveBlocks = []models.ElectiveBlock{{ID: "blk-1", Name: "Block 1", IsActive: true}}
	snap.ElectiveBlockSubjects = map[string][]models.ElectiveBlockSubject{
		"blk-1": {{BlockID: "blk-1", SubjectID: elective.ID, TeacherID: "teacher-1"}},
	}
	// sec-1 has no teacher_subject_sections row for the elective subject, and
	// sec-2's row names a different teacher than the block pairing.
	snap.BlockSections = map[string][]string{"blk-1": {"sec-1", "sec-2"}}
	snap.RequiredTeacher["sec-2"] = map[string]string{elective.ID: "teacher-2"}

	conflicts := checkElectiveBlocks(snap)

	types := conflictTypes(conflicts)
	assert.Contains(t, types, "ELECTIVE_BLOCK_UNCOVERED_SECTION")
	assert.Contains(t, types, "ELECTIVE_BLOCK_TEACHER_MISMATCH")
}

func conflictTypes(cs []Conflict) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ConflictType)
	}
	return out
}
