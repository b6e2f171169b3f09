// Package diagnose performs pure post-mortem analysis of an INFEASIBLE solve:
// no solver state is consulted, only the snapshot and its effective problem.
package diagnose

import (
	"fmt"

	"github.com/uniplan/coresched/internal/coresched/lock"
	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

// Diagnostic is one named explanation with a human-readable message and a
// machine-readable payload.
type Diagnostic struct {
	Type    string
	Message string
	Payload map[string]interface{}
}

// Run executes every analysis in spec order and returns every diagnostic
// that triggered. If none did, it returns a single DIAGNOSTICS_INCONCLUSIVE
// diagnostic.
func Run(snap *snapshot.Snapshot, ep *lock.EffectiveProblem) []Diagnostic {
	var out []Diagnostic

	out = append(out, teacherLoadExceedsLimit(snap)...)
	out = append(out, teacherDailyLoadViolation(snap, ep)...)
	out = append(out, teacherOffdayConflict(snap)...)
	out = append(out, sectionSlotDeficit(snap)...)
	out = append(out, labBlockUnfit(snap, ep)...)
	out = append(out, specialAllotmentDeadlock(snap, ep)...)
	out = append(out, lockedSessionsExceedRequirement(ep)...)
	out = append(out, roomCapacityShortage(snap, ep)...)
	out = append(out, specialRoomMisuse(snap)...)
	out = append(out, combinedGroupNoIntersection(snap)...)

	if len(out) == 0 {
		out = append(out, Diagnostic{Type: "DIAGNOSTICS_INCONCLUSIVE", Message: "no deterministic blocker was found; the model may still be infeasible due to interacting constraints"})
	}
	return out
}

func teacherLoadExceedsLimit(snap *snapshot.Snapshot) []Diagnostic {
	var out []Diagnostic
	demand := map[string]int{}
	for _, s := range snap.Sections {
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok {
				continue
			}
			teacherID := snap.RequiredTeacher[s.ID][subjectID]
			if teacherID != "" {
				demand[teacherID] += subj.RequiredSlots()
			}
		}
	}
	for _, t := range snap.Teachers {
		if demand[t.ID] > t.MaxPerWeek {
			out = append(out, Diagnostic{
				Type:    "TEACHER_LOAD_EXCEEDS_LIMIT",
				Message: fmt.Sprintf("teacher %s requires %d slots/week but max_per_week is %d", t.Code, demand[t.ID], t.MaxPerWeek),
				Payload: map[string]interface{}{"teacher_id": t.ID, "required": demand[t.ID], "max_per_week": t.MaxPerWeek},
			})
		}
	}
	return out
}

func teacherDailyLoadViolation(snap *snapshot.Snapshot, ep *lock.EffectiveProblem) []Diagnostic {
	var out []Diagnostic
	lockedPerTeacherDay := map[string]map[int]int{}
	for _, e := range ep.PreEntries {
		slot, ok := snap.SlotByID[e.SlotID]
		if !ok {
			continue
		}
		if lockedPerTeacherDay[e.TeacherID] == nil {
			lockedPerTeacherDay[e.TeacherID] = map[int]int{}
		}
		lockedPerTeacherDay[e.TeacherID][slot.DayOfWeek]++
	}
	for _, t := range snap.Teachers {
		for day, n := range lockedPerTeacherDay[t.ID] {
			if n > t.MaxPerDay {
				out = append(out, Diagnostic{
					Type:    "TEACHER_DAILY_LOAD_VIOLATION",
					Message: fmt.Sprintf("teacher %s has %d locked sessions on day %d exceeding max_per_day %d", t.Code, n, day, t.MaxPerDay),
					Payload: map[string]interface{}{"teacher_id": t.ID, "day": day, "locked": n, "max_per_day": t.MaxPerDay},
				})
			}
		}
	}
	return out
}

func teacherOffdayConflict(snap *snapshot.Snapshot) []Diagnostic {
	var out []Diagnostic
	check := func(teacherID, slotID string) {
		t, ok := snap.TeacherByID[teacherID]
		if !ok {
			return
		}
		slot, ok := snap.SlotByID[slotID]
		if !ok {
			return
		}
		if t.IsOffOn(slot.DayOfWeek) {
			out = append(out, Diagnostic{
				Type:    "TEACHER_OFFDAY_CONFLICT",
				Message: fmt.Sprintf("teacher %s is locked on day %d, which is their weekly off day", t.Code, slot.DayOfWeek),
				Payload: map[string]interface{}{"teacher_id": teacherID, "slot_id": slotID},
			})
		}
	}
	for _, f := range snap.FixedEntries {
		if f.IsActive {
			check(f.TeacherID, f.SlotID)
		}
	}
	for _, sp := range snap.SpecialAllotments {
		if sp.IsActive {
			check(sp.TeacherID, sp.SlotID)
		}
	}
	return out
}

func sectionSlotDeficit(snap *snapshot.Snapshot) []Diagnostic {
	var out []Diagnostic
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
			out = append(out, Diagnostic{
				Type:    "SECTION_SLOT_DEFICIT",
				Message: fmt.Sprintf("section %s requires %d slots but only %d are available", s.Code, demand, available),
				Payload: map[string]interface{}{"section_id": s.ID, "required": demand, "available": available},
			})
		}
	}
	return out
}

func labBlockUnfit(snap *snapshot.Snapshot, ep *lock.EffectiveProblem) []Diagnostic {
	var out []Diagnostic
	byDay := map[int][]int{}
	for _, sl := range snap.Slots {
		byDay[sl.DayOfWeek] = append(byDay[sl.DayOfWeek], sl.SlotIndex)
	}
	for day := range byDay {
		idxs := byDay[day]
		sortInts(idxs)
		byDay[day] = idxs
	}

	for _, s := range snap.Sections {
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok || subj.SubjectType != models.SubjectTypeLab {
				continue
			}
			allowed := ep.AllowedSlotsBySection[s.ID]
			fits := false
			for day, idxs := range byDay {
				run := 0
				for _, idx := range idxs {
					id := snap.SlotIDByKey[snapshot.SlotKey{Day: day, Index: idx}]
					if allowed[id] {
						run++
						if run >= subj.LabBlockSizeSlots {
							fits = true
							break
						}
					} else {
						run = 0
					}
				}
				if fits {
					break
				}
			}
			if !fits {
				out = append(out, Diagnostic{
					Type:    "LAB_BLOCK_UNFIT",
					Message: fmt.Sprintf("section %s subject %s needs a contiguous run of %d slots but none exists", s.Code, subj.Code, subj.LabBlockSizeSlots),
					Payload: map[string]interface{}{"section_id": s.ID, "subject_id": subjectID, "block_size": subj.LabBlockSizeSlots},
				})
			}
		}
	}
	return out
}

func specialAllotmentDeadlock(snap *snapshot.Snapshot, ep *lock.EffectiveProblem) []Diagnostic {
	var out []Diagnostic
	for sectionID, subjects := range ep.RemainingSessions {
		for subjectID, remaining := range subjects {
			if remaining <= 0 {
				continue
			}
			teacherID := snap.RequiredTeacher[sectionID][subjectID]
			t, ok := snap.TeacherByID[teacherID]
			if !ok {
				continue
			}
			days := models.DaysPerWeek
			if t.WeeklyOffDay != nil {
				days--
			}
			if remaining > t.MaxPerDay*days {
				out = append(out, Diagnostic{
					Type:    "SPECIAL_ALLOTMENT_DEADLOCK",
					Message: fmt.Sprintf("after locks, section %s subject %s still needs %d sessions, exceeding teacher %s's remaining capacity", sectionID, subjectID, remaining, t.Code),
					Payload: map[string]interface{}{"section_id": sectionID, "subject_id": subjectID, "remaining": remaining},
				})
			}
		}
	}
	return out
}

func lockedSessionsExceedRequirement(ep *lock.EffectiveProblem) []Diagnostic {
	var out []Diagnostic
	for sectionID, subjects := range ep.RemainingSessions {
		for subjectID, remaining := range subjects {
			if remaining < 0 {
				out = append(out, Diagnostic{
					Type:    "LOCKED_SESSIONS_EXCEED_REQUIREMENT",
					Message: fmt.Sprintf("locked occurrences for section %s subject %s exceed the required weekly sessions", sectionID, subjectID),
					Payload: map[string]interface{}{"section_id": sectionID, "subject_id": subjectID, "overage": -remaining},
				})
			}
		}
	}
	return out
}

func roomCapacityShortage(snap *snapshot.Snapshot, ep *lock.EffectiveProblem) []Diagnostic {
	var out []Diagnostic
	perSlot := map[string]int{}
	for _, e := range ep.PreEntries {
		perSlot[e.SlotID]++
	}
	theoryRooms, labRooms := 0, 0
	for _, r := range snap.Rooms {
		if !r.IsActive || r.IsSpecial {
			continue
		}
		if r.RoomType.IsTheoryCapable() {
			theoryRooms++
		} else if r.RoomType == models.RoomTypeLab {
			labRooms++
		}
	}
	capAvailable := theoryRooms + labRooms
	for slotID, n := range perSlot {
		if n > capAvailable {
			out = append(out, Diagnostic{
				Type:    "ROOM_CAPACITY_SHORTAGE",
				Message: fmt.Sprintf("slot %s has %d locked occupants exceeding total room capacity %d", slotID, n, capAvailable),
				Payload: map[string]interface{}{"slot_id": slotID, "locked": n, "capacity": capAvailable},
			})
		}
	}
	return out
}

func specialRoomMisuse(snap *snapshot.Snapshot) []Diagnostic {
	var out []Diagnostic
	for _, f := range snap.FixedEntries {
		if !f.IsActive {
			continue
		}
		if room, ok := snap.RoomByID[f.RoomID]; ok && room.IsSpecial {
			out = append(out, Diagnostic{
				Type:    "SPECIAL_ROOM_MISUSE",
				Message: fmt.Sprintf("fixed entry %s uses special room %s", f.ID, room.Code),
				Payload: map[string]interface{}{"fixed_entry_id": f.ID, "room_id": f.RoomID},
			})
		}
	}
	return out
}

func combinedGroupNoIntersection(snap *snapshot.Snapshot) []Diagnostic {
	var out []Diagnostic
	for _, g := range snap.CombinedGroups {
		members := snap.CombinedGroupSections[g.ID]
		if len(members) < 2 {
			continue
		}
		var intersection map[string]bool
		for i, sectionID := range members {
			allowed := snap.AllowedSlots[sectionID]
			if i == 0 {
				intersection = cloneSet(allowed)
			} else {
				intersection = intersectSet(intersection, allowed)
			}
		}
		if len(intersection) == 0 {
			out = append(out, Diagnostic{
				Type:    "COMBINED_GROUP_NO_INTERSECTION",
				Message: fmt.Sprintf("combined group %s has no common free slot across its member sections", g.ID),
				Payload: map[string]interface{}{"group_id": g.ID},
			})
		}
	}
	return out
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

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
