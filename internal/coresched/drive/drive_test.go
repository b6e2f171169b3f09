package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/coresched/internal/coresched/lock"
	cmodel "github.com/uniplan/coresched/internal/coresched/model"
	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
	"github.com/uniplan/coresched/pkg/cpsolver"
)

func twoTheorySectionsSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Rooms: []models.Room{
			{ID: "room-1", Code: "R1", RoomType: models.RoomTypeClassroom, IsActive: true},
		},
		SectionByID: map[string]models.Section{
			"sec-1": {ID: "sec-1"},
			"sec-2": {ID: "sec-2"},
		},
	}
}

// Two THEORY variables both fire true for the same slot but only one room
// exists: the second must still produce an entry, stamped with a synthetic
// CombinedClassID (the first keeps none), flagged WARN rather than dropped
// (§4.6 step 3 / T4).
func TestAssignRoomsOverbooksWithWarnInsteadOfDroppingEntry(t *testing.T) {
	snap := twoTheorySectionsSnapshot()
	ep := &lock.EffectiveProblem{}

	m := cpsolver.NewModel()
	v1 := m.NewBoolVar("x1")
	v2 := m.NewBoolVar("x2")
	built := &cmodel.Built{
		Model: m,
		Vars: []cmodel.VarMeta{
			{Kind: cmodel.KindTheory, Var: v1, SectionID: "sec-1", SubjectID: "sub-1", TeacherID: "t-1", SlotID: "slot-1"},
			{Kind: cmodel.KindTheory, Var: v2, SectionID: "sec-2", SubjectID: "sub-1", TeacherID: "t-2", SlotID: "slot-1"},
		},
	}
	result := cpsolver.Result{Assignment: []bool{true, true}}

	entries, conflicts := assignRooms("run-1", snap, ep, built, result)

	require.Len(t, entries, 2)
	assert.Equal(t, "room-1", entries[0].RoomID)
	assert.Equal(t, "room-1", entries[1].RoomID)
	assert.Nil(t, entries[0].CombinedClassID)
	require.NotNil(t, entries[1].CombinedClassID)

	require.Len(t, conflicts, 1)
	assert.Equal(t, models.SeverityWarn, conflicts[0].Severity)
	assert.Equal(t, "NO_ROOM_AVAILABLE", conflicts[0].ConflictType)
}

// When no room of any candidate type exists at all, the entry is still
// dropped and reported as an ERROR — there's no candidate to fall back to.
func TestAssignRoomsDropsEntryWhenNoCandidateRoomExistsAtAll(t *testing.T) {
	snap := &snapshot.Snapshot{
		SectionByID: map[string]models.Section{"sec-1": {ID: "sec-1"}},
	}
	ep := &lock.EffectiveProblem{}

	m := cpsolver.NewModel()
	v1 := m.NewBoolVar("x1")
	built := &cmodel.Built{
		Model: m,
		Vars: []cmodel.VarMeta{
			{Kind: cmodel.KindTheory, Var: v1, SectionID: "sec-1", SubjectID: "sub-1", TeacherID: "t-1", SlotID: "slot-1"},
		},
	}
	result := cpsolver.Result{Assignment: []bool{true}}

	entries, conflicts := assignRooms("run-1", snap, ep, built, result)

	assert.Empty(t, entries)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.SeverityError, conflicts[0].Severity)
	assert.Equal(t, "NO_ROOM_AVAILABLE", conflicts[0].ConflictType)
}
