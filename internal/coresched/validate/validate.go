// Package validate runs the prerequisite checks that decide whether a run
// may proceed to solving. Every check emits typed TimetableConflict rows;
// none of them ever returns a Go error for a domain problem.
package validate

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

// Conflict is a validator-built row, not yet assigned an id or run id.
type Conflict struct {
	Severity     models.ConflictSeverity
	ConflictType string
	Message      string
	SectionID    *string
	TeacherID    *string
	SubjectID    *string
	RoomID       *string
	SlotID       *string
	Metadata     map[string]interface{}
}

func errorf(conflictType, msg string, args ...interface{}) Conflict {
	return Conflict{Severity: models.SeverityError, ConflictType: conflictType, Message: fmt.Sprintf(msg, args...)}
}

func warnf(conflictType, msg string, args ...interface{}) Conflict {
	return Conflict{Severity: models.SeverityWarn, ConflictType: conflictType, Message: fmt.Sprintf(msg, args...)}
}

func ptr(s string) *string { return &s }

// MetadataJSON marshals a conflict's metadata bag, or nil if empty.
func (c Conflict) MetadataJSON() []byte {
	if len(c.Metadata) == 0 {
		return nil
	}
	b, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil
	}
	return b
}

// Run executes every check in spec order and returns the accumulated
// conflicts. HasBlockingError reports whether any ERROR-severity conflict
// was raised.
func Run(snap *snapshot.Snapshot, trackSubjects []models.TrackSubject) []Conflict {
	var out []Conflict

	out = append(out, checkSchemaPresence(snap)...)
	out = append(out, checkSectionWindows(snap)...)
	out = append(out, checkBreaks(snap)...)
	out = append(out, checkCurriculumPresence(snap)...)
	out = append(out, checkElectiveSelection(snap, trackSubjects)...)
	out = append(out, checkStrictTeacherAssignment(snap)...)
	out = append(out, checkElectiveBlocks(snap)...)
	out = append(out, checkTeacherWeeklyLoad(snap)...)
	out = append(out, checkFixedEntries(snap)...)
	out = append(out, checkSpecialAllotments(snap)...)
	out = append(out, checkCombinedGroups(snap)...)
	out = append(out, checkSectionCapacity(snap)...)

	return out
}

// HasBlockingError reports whether any conflict is ERROR severity.
func HasBlockingError(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// 1. Schema presence.
func checkSchemaPresence(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	if len(snap.Slots) == 0 {
		out = append(out, errorf("MISSING_TIME_SLOTS", "no time slots defined"))
	}
	if len(snap.Rooms) == 0 {
		out = append(out, errorf("MISSING_ROOMS", "no rooms defined"))
	}
	hasNonSpecial := false
	for _, r := range snap.Rooms {
		if !r.IsSpecial && r.IsActive {
			hasNonSpecial = true
			break
		}
	}
	if len(snap.Rooms) > 0 && !hasNonSpecial {
		out = append(out, errorf("MISSING_NON_SPECIAL_ROOMS", "no active non-special rooms defined"))
	}
	return out
}

// 2. Section windows: exactly one per (section, active day).
func checkSectionWindows(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		days := snap.Windows[s.ID]
		if len(days) == 0 {
			out = append(out, withSection(errorf("MISSING_SECTION_TIME_WINDOW", "section %s has no time windows", s.Code), s.ID))
			continue
		}
		for day, indices := range days {
			if len(indices) == 0 {
				out = append(out, withSection(errorf("INVALID_SECTION_TIME_WINDOW", "section %s window on day %d is empty or inverted", s.Code, day), s.ID))
			}
		}
	}
	return out
}

// 3. Break compatibility.
func checkBreaks(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	for _, b := range snap.Breaks {
		slot, ok := snap.SlotByID[b.SlotID]
		if !ok {
			out = append(out, withSection(errorf("INVALID_SECTION_BREAK", "break references unknown slot %s", b.SlotID), b.SectionID))
			continue
		}
		indices := snap.Windows[b.SectionID][slot.DayOfWeek]
		inWindow := false
		for _, idx := range indices {
			if idx == slot.SlotIndex {
				inWindow = true
				break
			}
		}
		if !inWindow {
			out = append(out, withSection(errorf("BREAK_OUTSIDE_SECTION_WINDOW", "break for section on day %d slot %d falls outside the section's window", slot.DayOfWeek, slot.SlotIndex), b.SectionID))
		}
	}
	return out
}

// 4. Curriculum presence.
func checkCurriculumPresence(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		subjects := snap.SectionSubjects[s.ID]
		if len(subjects) == 0 {
			out = append(out, withSection(errorf("MISSING_SECTION_SUBJECTS", "section %s resolves to zero required subjects", s.Code), s.ID))
		}
	}
	return out
}

// 5. Elective selection.
func checkElectiveSelection(snap *snapshot.Snapshot, trackSubjects []models.TrackSubject) []Conflict {
	var out []Conflict
	for _, s := range snap.Sections {
		if !s.IsActive || snap.UsesElectiveBlocks(s.ID) {
			continue
		}
		options := snap.ElectiveOptions(s.ID, trackSubjects)
		pick, hasPick := snap.SectionElectivePick[s.ID]

		if s.Track != models.TrackCore {
			if hasPick {
				out = append(out, withSection(errorf("NON_CORE_HAS_ELECTIVE_SELECTION", "non-CORE section %s has an elective selection", s.Code), s.ID))
			}
			continue
		}
		if len(options) == 0 {
			if hasPick {
				out = append(out, withSection(errorf("UNEXPECTED_ELECTIVE_SELECTION", "section %s picked an elective but none are defined", s.Code), s.ID))
			}
			continue
		}
		if !hasPick {
			out = append(out, withSection(errorf("MISSING_ELECTIVE_SELECTION", "CORE section %s must choose exactly one elective", s.Code), s.ID))
			continue
		}
		valid := false
		for _, o := range options {
			if o == pick {
				valid = true
				break
			}
		}
		if !valid {
			out = append(out, withSection(errorf("INVALID_ELECTIVE_SELECTION", "section %s's elective pick is not an allowed option", s.Code), s.ID))
		}
	}
	return out
}

// 6. Strict teacher assignment: exactly one active teacher per required (section, subject).
func checkStrictTeacherAssignment(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	counts := map[string]map[string]int{}
	for _, t := range snap.TeacherSubjectSections {
		if !t.IsActive {
			continue
		}
		if counts[t.SectionID] == nil {
			counts[t.SectionID] = map[string]int{}
		}
		counts[t.SectionID][t.SubjectID]++
	}
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			n := counts[s.ID][subjectID]
			switch {
			case n == 0:
				c := errorf("MISSING_TEACHER_ASSIGNMENT", "section %s subject %s has no active teacher assignment", s.Code, subjectID)
				c.SubjectID = ptr(subjectID)
				out = append(out, withSection(c, s.ID))
			case n > 1:
				c := errorf("DUPLICATE_TEACHER_ASSIGNMENT", "section %s subject %s has %d active teacher assignments", s.Code, subjectID, n)
				c.SubjectID = ptr(subjectID)
				out = append(out, withSection(c, s.ID))
			}
		}
	}
	return out
}

// 7. Elective blocks.
func checkElectiveBlocks(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	for _, b := range snap.ElectiveBlocks {
		if !b.IsActive {
			continue
		}
		pairs := snap.ElectiveBlockSubjects[b.ID]
		if len(pairs) == 0 {
			out = append(out, errorf("ELECTIVE_BLOCK_EMPTY", "elective block %s has no subjects", b.Name))
			continue
		}
		sections := snap.BlockSections[b.ID]
		seenTeacher := map[string]bool{}
		var sessionsPerWeek = -1
		for _, p := range pairs {
			if seenTeacher[p.TeacherID] {
				out = append(out, errorf("ELECTIVE_BLOCK_DUPLICATE_TEACHER", "elective block %s assigns teacher %s more than once", b.Name, p.TeacherID))
			}
			seenTeacher[p.TeacherID] = true

			subj, ok := snap.SubjectByID[p.SubjectID]
			if !ok {
				continue
			}
			if subj.SubjectType != models.SubjectTypeTheory {
				out = append(out, errorf("ELECTIVE_BLOCK_NON_THEORY_SUBJECT", "elective block %s subject %s is not THEORY", b.Name, subj.Code))
			}
			if sessionsPerWeek == -1 {
				sessionsPerWeek = subj.SessionsPerWeek
			} else if sessionsPerWeek != subj.SessionsPerWeek {
				out = append(out, errorf("ELECTIVE_BLOCK_SESSIONS_MISMATCH", "elective block %s subjects disagree on sessions_per_week", b.Name))
			}

			for _, sectionID := range sections {
				teacher := snap.RequiredTeacher[sectionID][p.SubjectID]
				switch {
				case teacher == "":
					c := errorf("ELECTIVE_BLOCK_UNCOVERED_SECTION", "elective block %s subject %s has no teacher_subject_sections row for section %s", b.Name, subj.Code, sectionID)
					c.SectionID = ptr(sectionID)
					c.SubjectID = ptr(p.SubjectID)
					out = append(out, c)
				case teacher != p.TeacherID:
					c := errorf("ELECTIVE_BLOCK_TEACHER_MISMATCH", "elective block %s assigns teacher %s to subject %s but section %s's teacher_subject_sections row names a different teacher", b.Name, p.TeacherID, subj.Code, sectionID)
					c.SectionID = ptr(sectionID)
					c.SubjectID = ptr(p.SubjectID)
					c.TeacherID = ptr(teacher)
					out = append(out, c)
				}
			}
		}
		if len(sections) == 0 {
			out = append(out, errorf("ELECTIVE_BLOCK_UNMAPPED", "elective block %s is mapped to no sections", b.Name))
		}
	}
	return out
}

// 8. Teacher weekly load.
func checkTeacherWeeklyLoad(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	demand := map[string]int{}
	accountedCombined := map[string]bool{}

	for _, s := range snap.Sections {
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok {
				continue
			}
			teacherID := snap.RequiredTeacher[s.ID][subjectID]
			if teacherID == "" {
				continue
			}
			demand[teacherID] += subj.RequiredSlots()
		}
	}
	for _, g := range snap.CombinedGroups {
		if g.TeacherID == nil {
			continue
		}
		key := g.ID
		if accountedCombined[key] {
			continue
		}
		accountedCombined[key] = true
		subj, ok := snap.SubjectByID[g.SubjectID]
		if !ok {
			continue
		}
		demand[*g.TeacherID] += subj.RequiredSlots()
	}

	for _, t := range snap.Teachers {
		assigned := demand[t.ID]
		if assigned > t.MaxPerWeek {
			c := errorf("TEACHER_LOAD_EXCEEDS_MAX_PER_WEEK", "teacher %s assigned %d slots exceeds max_per_week %d", t.Code, assigned, t.MaxPerWeek)
			c.TeacherID = ptr(t.ID)
			c.Metadata = map[string]interface{}{
				"assigned_slots": assigned,
				"max_per_week":   t.MaxPerWeek,
				"difference":     assigned - t.MaxPerWeek,
			}
			out = append(out, c)
		}
	}
	return out
}

// 9. Fixed entries.
func checkFixedEntries(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	seenTeacherSlot := map[string]bool{}
	for _, f := range snap.FixedEntries {
		if !f.IsActive {
			continue
		}
		room, roomOK := snap.RoomByID[f.RoomID]
		if roomOK && room.IsSpecial {
			out = append(out, withEntry(errorf("FIXED_ENTRY_SPECIAL_ROOM", "fixed entry for section uses a special room"), f.SectionID, f.TeacherID, f.SubjectID, f.RoomID, f.SlotID))
		}
		slot, slotOK := snap.SlotByID[f.SlotID]
		if !slotOK {
			out = append(out, withEntry(errorf("FIXED_ENTRY_INVALID_SLOT", "fixed entry references unknown slot"), f.SectionID, f.TeacherID, f.SubjectID, f.RoomID, f.SlotID))
			continue
		}
		indices := snap.Windows[f.SectionID][slot.DayOfWeek]
		inWindow := false
		for _, idx := range indices {
			if idx == slot.SlotIndex {
				inWindow = true
				break
			}
		}
		if !inWindow {
			out = append(out, withEntry(errorf("FIXED_ENTRY_OUTSIDE_WINDOW", "fixed entry falls outside the section's time window"), f.SectionID, f.TeacherID, f.SubjectID, f.RoomID, f.SlotID))
		}
		if teacher, ok := snap.TeacherByID[f.TeacherID]; ok && teacher.IsOffOn(slot.DayOfWeek) {
			out = append(out, withEntry(errorf("FIXED_ENTRY_TEACHER_OFF_DAY", "fixed entry schedules teacher on their weekly off day"), f.SectionID, f.TeacherID, f.SubjectID, f.RoomID, f.SlotID))
		}
		if required := snap.RequiredTeacher[f.SectionID][f.SubjectID]; required != "" && required != f.TeacherID {
			out = append(out, withEntry(errorf("FIXED_ENTRY_TEACHER_MISMATCH", "fixed entry teacher does not match the strict assignment"), f.SectionID, f.TeacherID, f.SubjectID, f.RoomID, f.SlotID))
		}
		key := f.TeacherID + "|" + f.SlotID
		if seenTeacherSlot[key] {
			out = append(out, withEntry(errorf("FIXED_ENTRY_TEACHER_OVERLAP", "two fixed entries share the same teacher and slot"), f.SectionID, f.TeacherID, f.SubjectID, f.RoomID, f.SlotID))
		}
		seenTeacherSlot[key] = true
	}
	return out
}

// 10. Special allotments.
func checkSpecialAllotments(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	seenTeacherSlot := map[string]bool{}
	seenRoomSlot := map[string]bool{}
	fixedRoomSlot := map[string]bool{}
	for _, f := range snap.FixedEntries {
		if f.IsActive {
			fixedRoomSlot[f.RoomID+"|"+f.SlotID] = true
		}
	}
	for _, sp := range snap.SpecialAllotments {
		if !sp.IsActive {
			continue
		}
		room, roomOK := snap.RoomByID[sp.RoomID]
		if roomOK && !room.IsSpecial {
			out = append(out, withEntry(errorf("SPECIAL_ALLOTMENT_NON_SPECIAL_ROOM", "special allotment uses a non-special room"), sp.SectionID, sp.TeacherID, sp.SubjectID, sp.RoomID, sp.SlotID))
		}
		tKey := sp.TeacherID + "|" + sp.SlotID
		if seenTeacherSlot[tKey] {
			out = append(out, withEntry(errorf("SPECIAL_TEACHER_OVERLAP", "two special allotments share the same teacher and slot"), sp.SectionID, sp.TeacherID, sp.SubjectID, sp.RoomID, sp.SlotID))
		}
		seenTeacherSlot[tKey] = true

		rKey := sp.RoomID + "|" + sp.SlotID
		if seenRoomSlot[rKey] {
			out = append(out, withEntry(errorf("SPECIAL_ROOM_OVERLAP", "two special allotments share the same room and slot"), sp.SectionID, sp.TeacherID, sp.SubjectID, sp.RoomID, sp.SlotID))
		}
		seenRoomSlot[rKey] = true

		if fixedRoomSlot[rKey] {
			out = append(out, withEntry(errorf("SPECIAL_CONFLICTS_WITH_FIXED_ENTRY", "special allotment's room/slot is also used by a fixed entry"), sp.SectionID, sp.TeacherID, sp.SubjectID, sp.RoomID, sp.SlotID))
		}
	}
	return out
}

// 11. Combined groups.
func checkCombinedGroups(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	hasLT := false
	for _, r := range snap.Rooms {
		if r.RoomType == models.RoomTypeLT {
			hasLT = true
			break
		}
	}
	for _, g := range snap.CombinedGroups {
		subj, ok := snap.SubjectByID[g.SubjectID]
		if !ok || subj.SubjectType != models.SubjectTypeTheory {
			out = append(out, errorf("COMBINED_GROUP_NON_THEORY_SUBJECT", "combined group %s subject is not THEORY", g.ID))
			continue
		}
		members := snap.CombinedGroupSections[g.ID]
		if len(members) < 2 {
			out = append(out, errorf("COMBINED_GROUP_TOO_FEW_SECTIONS", "combined group %s has fewer than 2 member sections", g.ID))
			continue
		}
		var intersection map[string]bool
		for i, sectionID := range members {
			if _, ok := snap.SectionSubjects[sectionID]; !ok {
				continue
			}
			hasSubject := false
			for _, sid := range snap.SectionSubjects[sectionID] {
				if sid == g.SubjectID {
					hasSubject = true
					break
				}
			}
			if !hasSubject {
				out = append(out, withSection(errorf("COMBINED_GROUP_SUBJECT_NOT_IN_SECTION", "combined group %s subject missing from member section", g.ID), sectionID))
			}
			allowed := snap.AllowedSlots[sectionID]
			if i == 0 {
				intersection = cloneSet(allowed)
			} else {
				intersection = intersectSet(intersection, allowed)
			}
		}
		if len(intersection) == 0 {
			out = append(out, errorf("COMBINED_GROUP_NO_COMMON_SLOTS", "combined group %s has no common available slot across members", g.ID))
		}
		if !hasLT {
			out = append(out, errorf("COMBINED_GROUP_NO_LT_ROOM", "combined group %s requires an LT room but none exist in the catalog", g.ID))
		}
	}
	return out
}

// 12/13. Section capacity and soft warnings.
func checkSectionCapacity(snap *snapshot.Snapshot) []Conflict {
	var out []Conflict
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		demand := 0
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			if subj, ok := snap.SubjectByID[subjectID]; ok {
				demand += subj.RequiredSlots()
			}
		}
		available := len(snap.AllowedSlots[s.ID])
		if demand > available {
			c := errorf("SECTION_LOAD_EXCEEDS_WINDOW_CAPACITY", "section %s requires %d slots but only %d are available", s.Code, demand, available)
			c.Metadata = map[string]interface{}{"required": demand, "available": available}
			out = append(out, withSection(c, s.ID))
		}
		if demand > 30 {
			out = append(out, withSection(warnf("SECTION_WEEKLY_LOAD_GT_30", "section %s weekly load %d exceeds 30 slots", s.Code, demand), s.ID))
		}
	}
	return out
}

func withSection(c Conflict, sectionID string) Conflict {
	c.SectionID = ptr(sectionID)
	return c
}

func withEntry(c Conflict, sectionID, teacherID, subjectID, roomID, slotID string) Conflict {
	c.SectionID = ptr(sectionID)
	c.TeacherID = ptr(teacherID)
	c.SubjectID = ptr(subjectID)
	c.RoomID = ptr(roomID)
	c.SlotID = ptr(slotID)
	return c
}

func cloneSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k := range in {
		out[k] = true
	}
	return out
}

func intersectSet(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

// SortedKeys returns the keys of a slot-id set in sorted order, for
// deterministic iteration.
func SortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
