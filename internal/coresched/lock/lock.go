// Package lock pre-applies fixed entries and special allotments, shrinking
// the decision space the CP model builder has to search before any boolean
// variable is created.
package lock

import (
	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

// ReservedRoom is a room consumed by a locked event at a given slot, kept so
// greedy room assignment (C6) never double-books it.
type ReservedRoom struct {
	SectionID string
	SlotID    string
	RoomID    string
}

// EffectiveProblem is the shrunk decision space the CP model builder (C5)
// consumes: allowed slots per section, per-teacher forbidden slots, the
// remaining (post-lock) required session counts, reserved rooms, and the
// pre-written entries a solve must persist alongside solver output.
type EffectiveProblem struct {
	AllowedSlotsBySection map[string]map[string]bool
	TeacherDisallowedSlot map[string]map[string]bool
	RemainingSessions     map[string]map[string]int // sectionID -> subjectID -> remaining count
	BlockLockedCount      map[string]int            // blockID -> locked occurrences
	ReservedRooms         []ReservedRoom
	PreEntries            []models.TimetableEntry
	Infeasible            bool
	InfeasibleReason      string
}

// Apply walks fixed entries and special allotments in snapshot order and produces
// the effective problem. required carries each (section, subject) required
// session count before locks (THEORY: sessions_per_week occurrences, LAB:
// sessions_per_week blocks); blockRequired carries each block's
// sessions_per_week.
func Apply(snap *snapshot.Snapshot, required map[string]map[string]int, blockRequired map[string]int) *EffectiveProblem {
	ep := &EffectiveProblem{
		AllowedSlotsBySection: cloneAllowed(snap.AllowedSlots),
		TeacherDisallowedSlot: map[string]map[string]bool{},
		RemainingSessions:     cloneRequired(required),
		BlockLockedCount:      map[string]int{},
	}

	slotsByDay := indexSlotsByDay(snap)

	applyOne := func(sectionID, subjectID, teacherID, roomID, slotID string) {
		subj, ok := snap.SubjectByID[subjectID]
		if !ok {
			return
		}
		slot, ok := snap.SlotByID[slotID]
		if !ok {
			return
		}

		covered := []string{slotID}
		if subj.SubjectType == models.SubjectTypeLab {
			covered = contiguousRun(slotsByDay, slot.DayOfWeek, slot.SlotIndex, subj.LabBlockSizeSlots)
		}

		for _, sid := range covered {
			delete(ep.AllowedSlotsBySection[sectionID], sid)
			if ep.TeacherDisallowedSlot[teacherID] == nil {
				ep.TeacherDisallowedSlot[teacherID] = map[string]bool{}
			}
			ep.TeacherDisallowedSlot[teacherID][sid] = true
		}

		if ep.RemainingSessions[sectionID] == nil {
			ep.RemainingSessions[sectionID] = map[string]int{}
		}
		ep.RemainingSessions[sectionID][subjectID]--
		if ep.RemainingSessions[sectionID][subjectID] < 0 {
			ep.Infeasible = true
			ep.InfeasibleReason = "locked occurrences exceed required sessions for section " + sectionID + " subject " + subjectID
		}

		ep.ReservedRooms = append(ep.ReservedRooms, ReservedRoom{SectionID: sectionID, SlotID: slotID, RoomID: roomID})
		for _, sid := range covered {
			if sid == slotID {
				continue
			}
			ep.ReservedRooms = append(ep.ReservedRooms, ReservedRoom{SectionID: sectionID, SlotID: sid, RoomID: roomID})
		}

		yearID := snap.SectionByID[sectionID].AcademicYearID
		for _, sid := range covered {
			ep.PreEntries = append(ep.PreEntries, models.TimetableEntry{
				AcademicYearID: yearID,
				SectionID:      sectionID,
				SubjectID:      subjectID,
				TeacherID:      teacherID,
				RoomID:         roomID,
				SlotID:         sid,
			})
		}

		// Elective-block lock: the whole block occurs simultaneously across
		// every mapped section; lock every member section's slot and every
		// block teacher, and reserve the forced room for this subject.
		for blockID, pairs := range blockPairsContaining(snap, subjectID, teacherID) {
			ep.BlockLockedCount[blockID]++
			for _, memberSection := range snap.BlockSections[blockID] {
				if memberSection == sectionID {
					continue
				}
				delete(ep.AllowedSlotsBySection[memberSection], slotID)
			}
			for _, p := range pairs {
				if ep.TeacherDisallowedSlot[p.TeacherID] == nil {
					ep.TeacherDisallowedSlot[p.TeacherID] = map[string]bool{}
				}
				ep.TeacherDisallowedSlot[p.TeacherID][slotID] = true
			}
		}
	}

	for _, f := range snap.FixedEntries {
		if f.IsActive {
			applyOne(f.SectionID, f.SubjectID, f.TeacherID, f.RoomID, f.SlotID)
		}
	}
	for _, sp := range snap.SpecialAllotments {
		if sp.IsActive {
			applyOne(sp.SectionID, sp.SubjectID, sp.TeacherID, sp.RoomID, sp.SlotID)
		}
	}

	for blockID, locked := range ep.BlockLockedCount {
		if locked > blockRequired[blockID] {
			ep.Infeasible = true
			ep.InfeasibleReason = "locked elective block occurrences exceed block sessions_per_week for block " + blockID
		}
	}

	return ep
}

// blockPairsContaining returns, keyed by block id, the (subject, teacher)
// pairs of any active elective block whose pairing matches subjectID and
// teacherID — i.e. the block this lock belongs to, if any.
func blockPairsContaining(snap *snapshot.Snapshot, subjectID, teacherID string) map[string][]models.ElectiveBlockSubject {
	out := map[string][]models.ElectiveBlockSubject{}
	for _, b := range snap.ElectiveBlocks {
		pairs := snap.ElectiveBlockSubjects[b.ID]
		for _, p := range pairs {
			if p.SubjectID == subjectID && p.TeacherID == teacherID {
				out[b.ID] = pairs
				break
			}
		}
	}
	return out
}

func indexSlotsByDay(snap *snapshot.Snapshot) map[int]map[int]string {
	out := map[int]map[int]string{}
	for _, s := range snap.Slots {
		if out[s.DayOfWeek] == nil {
			out[s.DayOfWeek] = map[int]string{}
		}
		out[s.DayOfWeek][s.SlotIndex] = s.ID
	}
	return out
}

func contiguousRun(slotsByDay map[int]map[int]string, day, startIndex, length int) []string {
	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		id, ok := slotsByDay[day][startIndex+i]
		if !ok {
			break
		}
		out = append(out, id)
	}
	return out
}

func cloneAllowed(in map[string]map[string]bool) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(in))
	for sectionID, set := range in {
		clone := make(map[string]bool, len(set))
		for slotID := range set {
			clone[slotID] = true
		}
		out[sectionID] = clone
	}
	return out
}

func cloneRequired(in map[string]map[string]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(in))
	for sectionID, subjects := range in {
		clone := make(map[string]int, len(subjects))
		for subjectID, n := range subjects {
			clone[subjectID] = n
		}
		out[sectionID] = clone
	}
	return out
}
