// Package drive runs the compiled model through pkg/cpsolver, assigns rooms
// to the winning assignment, and translates the result into persistable
// entries, conflicts, and solver stats.
package drive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uniplan/coresched/internal/coresched/diagnose"
	"github.com/uniplan/coresched/internal/coresched/lock"
	cmodel "github.com/uniplan/coresched/internal/coresched/model"
	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
	"github.com/uniplan/coresched/pkg/cpsolver"
)

// Options configures one drive attempt.
type Options struct {
	Seed          int64
	MaxTime       time.Duration
	Workers       int
	RequireOptimal bool
	ModelOptions  cmodel.Options
}

// Outcome is everything a drive attempt produces for persistence.
type Outcome struct {
	Status      models.RunStatus
	Entries     []models.TimetableEntry
	Conflicts   []models.TimetableConflict
	Stats       models.SolverStats
	Diagnostics []diagnose.Diagnostic
	Objective   *float64
}

// Run builds the model, solves it, assigns rooms, and maps every terminal
// outcome per the run-status rules: OPTIMAL stays OPTIMAL; a time-limited
// FEASIBLE becomes SUBOPTIMAL with a WARN conflict when the caller requires
// optimality, or stays FEASIBLE otherwise; INFEASIBLE/UNKNOWN/MODEL_INVALID
// all resolve to INFEASIBLE with diagnostics attached, except MODEL_INVALID
// which reports ERROR since it reflects a builder defect, not an unsolvable
// instance.
func Run(ctx context.Context, runID string, snap *snapshot.Snapshot, ep *lock.EffectiveProblem, opts Options, blockSessionsPerWeek, groupSessionsPerWeek map[string]int) Outcome {
	built := cmodel.Build(snap, ep, opts.ModelOptions, blockSessionsPerWeek, groupSessionsPerWeek)

	result := built.Model.Solve(ctx, cpsolver.Options{Seed: opts.Seed, MaxTime: opts.MaxTime, Workers: opts.Workers})

	stats := models.SolverStats{
		StatusName:  result.Status.String(),
		WallTime:    result.Stats.WallTime,
		Branches:    result.Stats.Branches,
		Conflicts:   result.Stats.Conflicts,
		WorkersUsed: result.Stats.WorkersUsed,
	}

	switch result.Status {
	case cpsolver.StatusOptimal, cpsolver.StatusFeasible:
		entries, conflicts := assignRooms(runID, snap, ep, built, result)
		entries = append(entries, lockedEntries(runID, ep)...)

		status := models.RunStatusOptimal
		if result.Status == cpsolver.StatusFeasible {
			if opts.RequireOptimal {
				status = models.RunStatusSuboptimal
				conflicts = append(conflicts, models.TimetableConflict{
					RunID:        runID,
					Severity:     models.SeverityWarn,
					ConflictType: "SOLVE_TIME_LIMIT_REACHED",
					Message:      "the search reached its time limit before proving optimality; the returned schedule is feasible but not certified optimal",
				})
			} else {
				status = models.RunStatusFeasible
			}
		}

		obj := result.ObjectiveValue
		return Outcome{Status: status, Entries: entries, Conflicts: conflicts, Stats: stats, Objective: &obj}

	case cpsolver.StatusModelInvalid:
		return Outcome{
			Status: models.RunStatusError,
			Conflicts: []models.TimetableConflict{{
				RunID: runID, Severity: models.SeverityError, ConflictType: "MODEL_BUILD_FAILED",
				Message: ep.InfeasibleReason,
			}},
			Stats: stats,
		}

	default: // StatusInfeasible, StatusUnknown
		diags := diagnose.Run(snap, ep)
		conflicts := make([]models.TimetableConflict, 0, len(diags))
		for _, d := range diags {
			conflicts = append(conflicts, models.TimetableConflict{
				RunID: runID, Severity: models.SeverityError, ConflictType: d.Type, Message: d.Message,
			})
		}
		return Outcome{Status: models.RunStatusInfeasible, Conflicts: conflicts, Stats: stats, Diagnostics: diags}
	}
}

// lockedEntries replays the pre-locked entries the solver never saw, stamped
// with the run id.
func lockedEntries(runID string, ep *lock.EffectiveProblem) []models.TimetableEntry {
	out := make([]models.TimetableEntry, len(ep.PreEntries))
	for i, e := range ep.PreEntries {
		e.RunID = runID
		out[i] = e
	}
	return out
}

// assignRooms greedily assigns a room to every solver-chosen variable that
// fired true, reserving locked rooms first so a solver placement only lands
// in a lock's room when no candidate room is free (the resolveRoom fallback
// below). Ties break by room code for determinism. Kind-specific room-type
// preference follows §4.6: THEORY prefers CLASSROOM then LT; block/combined
// prefer LT then CLASSROOM; LAB requires a LAB room across its whole covered
// run.
func assignRooms(runID string, snap *snapshot.Snapshot, ep *lock.EffectiveProblem, built *cmodel.Built, result cpsolver.Result) ([]models.TimetableEntry, []models.TimetableConflict) {
	reservedBySlot := map[string]map[string]bool{}
	for _, r := range ep.ReservedRooms {
		if reservedBySlot[r.SlotID] == nil {
			reservedBySlot[r.SlotID] = map[string]bool{}
		}
		reservedBySlot[r.SlotID][r.RoomID] = true
	}

	var theoryRooms, ltRooms, labRooms []models.Room
	for _, r := range snap.Rooms {
		if !r.IsActive || r.IsSpecial {
			continue
		}
		switch r.RoomType {
		case models.RoomTypeClassroom:
			theoryRooms = append(theoryRooms, r)
		case models.RoomTypeLT:
			ltRooms = append(ltRooms, r)
		case models.RoomTypeLab:
			labRooms = append(labRooms, r)
		}
	}
	sortRooms := func(rs []models.Room) {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Code < rs[j].Code })
	}
	sortRooms(theoryRooms)
	sortRooms(ltRooms)
	sortRooms(labRooms)

	var entries []models.TimetableEntry
	var conflicts []models.TimetableConflict

	pickRoom := func(candidates []models.Room, slotIDs []string) (models.Room, bool) {
		for _, r := range candidates {
			free := true
			for _, sid := range slotIDs {
				if reservedBySlot[sid][r.ID] {
					free = false
					break
				}
			}
			if free {
				for _, sid := range slotIDs {
					if reservedBySlot[sid] == nil {
						reservedBySlot[sid] = map[string]bool{}
					}
					reservedBySlot[sid][r.ID] = true
				}
				return r, true
			}
		}
		return models.Room{}, false
	}

	// resolveRoom tries every tier in order for a free room; when every tier
	// is exhausted it falls back to the first room in the first non-empty
	// tier instead of dropping the entry (§4.6 step 3), reporting the
	// overbooking via the collided return value.
	resolveRoom := func(slotIDs []string, tiers ...[]models.Room) (room models.Room, collided, ok bool) {
		for _, tier := range tiers {
			if r, found := pickRoom(tier, slotIDs); found {
				return r, false, true
			}
		}
		for _, tier := range tiers {
			if len(tier) > 0 {
				return tier[0], true, true
			}
		}
		return models.Room{}, false, false
	}

	overflowIDs := map[string]string{}
	overflowSeq := 0
	syntheticCombinedID := func(roomID string, slotIDs []string) string {
		key := roomID + "|" + strings.Join(slotIDs, ",")
		if id, ok := overflowIDs[key]; ok {
			return id
		}
		overflowSeq++
		id := fmt.Sprintf("overbooked-%s-%d", roomID, overflowSeq)
		overflowIDs[key] = id
		return id
	}

	for _, v := range built.Vars {
		if !result.Value(v.Var) {
			continue
		}

		switch v.Kind {
		case cmodel.KindTheory:
			room, collided, ok := resolveRoom([]string{v.SlotID}, theoryRooms, ltRooms)
			if !ok {
				conflicts = append(conflicts, noRoomConflict(runID, "NO_ROOM_AVAILABLE", v.SectionID, v.SubjectID, v.SlotID))
				continue
			}
			var combinedID *string
			if collided {
				id := syntheticCombinedID(room.ID, []string{v.SlotID})
				combinedID = &id
				conflicts = append(conflicts, overbookedRoomConflict(runID, "NO_ROOM_AVAILABLE", v.SectionID, v.SubjectID, v.SlotID, id))
			}
			entries = append(entries, entry(runID, snap, v.SectionID, v.SubjectID, v.TeacherID, room.ID, v.SlotID, combinedID, nil))

		case cmodel.KindLabStart:
			room, collided, ok := resolveRoom(v.SlotIDs, labRooms)
			if !ok {
				conflicts = append(conflicts, noRoomConflict(runID, "NO_LAB_ROOM_AVAILABLE", v.SectionID, v.SubjectID, v.SlotID))
				continue
			}
			var combinedID *string
			if collided {
				id := syntheticCombinedID(room.ID, v.SlotIDs)
				combinedID = &id
				conflicts = append(conflicts, overbookedRoomConflict(runID, "NO_LAB_ROOM_AVAILABLE", v.SectionID, v.SubjectID, v.SlotID, id))
			}
			for _, sid := range v.SlotIDs {
				entries = append(entries, entry(runID, snap, v.SectionID, v.SubjectID, v.TeacherID, room.ID, sid, combinedID, nil))
			}

		case cmodel.KindBlock:
			room, collided, ok := resolveRoom([]string{v.SlotID}, ltRooms, theoryRooms)
			if !ok {
				conflicts = append(conflicts, models.TimetableConflict{
					RunID: runID, Severity: models.SeverityError, ConflictType: "NO_LT_ROOM_AVAILABLE",
					Message: fmt.Sprintf("elective block %s could not be seated: no theory room free at slot %s", v.BlockID, v.SlotID),
					SlotID:  ptr(v.SlotID),
				})
				continue
			}
			if collided {
				conflicts = append(conflicts, models.TimetableConflict{
					RunID: runID, Severity: models.SeverityWarn, ConflictType: "NO_LT_ROOM_AVAILABLE",
					Message: fmt.Sprintf("elective block %s was double-booked into room %s at slot %s; assigned anyway", v.BlockID, room.Code, v.SlotID),
					SlotID:  ptr(v.SlotID),
				})
			}
			for _, sectionID := range snap.BlockSections[v.BlockID] {
				for _, p := range snap.ElectiveBlockSubjects[v.BlockID] {
					entries = append(entries, entry(runID, snap, sectionID, p.SubjectID, p.TeacherID, room.ID, v.SlotID, nil, ptr(v.BlockID)))
				}
			}

		case cmodel.KindCombined:
			room, collided, ok := resolveRoom([]string{v.SlotID}, ltRooms, theoryRooms)
			if !ok {
				conflicts = append(conflicts, models.TimetableConflict{
					RunID: runID, Severity: models.SeverityError, ConflictType: "NO_LT_ROOM_AVAILABLE",
					Message: fmt.Sprintf("combined group %s could not be seated: no theory room free at slot %s", v.GroupID, v.SlotID),
					SlotID:  ptr(v.SlotID),
				})
				continue
			}
			if collided {
				conflicts = append(conflicts, models.TimetableConflict{
					RunID: runID, Severity: models.SeverityWarn, ConflictType: "NO_LT_ROOM_AVAILABLE",
					Message: fmt.Sprintf("combined group %s was double-booked into room %s at slot %s; assigned anyway", v.GroupID, room.Code, v.SlotID),
					SlotID:  ptr(v.SlotID),
				})
			}
			g := findCombinedGroup(snap, v.GroupID)
			for _, sectionID := range snap.CombinedGroupSections[v.GroupID] {
				entries = append(entries, entry(runID, snap, sectionID, g.SubjectID, v.TeacherID, room.ID, v.SlotID, ptr(v.GroupID), nil))
			}
		}
	}

	return entries, conflicts
}

func entry(runID string, snap *snapshot.Snapshot, sectionID, subjectID, teacherID, roomID, slotID string, combinedID, blockID *string) models.TimetableEntry {
	sec := snap.SectionByID[sectionID]
	return models.TimetableEntry{
		RunID:           runID,
		AcademicYearID:  sec.AcademicYearID,
		SectionID:       sectionID,
		SubjectID:       subjectID,
		TeacherID:       teacherID,
		RoomID:          roomID,
		SlotID:          slotID,
		CombinedClassID: combinedID,
		ElectiveBlockID: blockID,
	}
}

func noRoomConflict(runID, conflictType, sectionID, subjectID, slotID string) models.TimetableConflict {
	return models.TimetableConflict{
		RunID: runID, Severity: models.SeverityError, ConflictType: conflictType,
		Message:   fmt.Sprintf("no room of a suitable type was free at slot %s for section %s subject %s", slotID, sectionID, subjectID),
		SectionID: ptr(sectionID),
		SubjectID: ptr(subjectID),
		SlotID:    ptr(slotID),
	}
}

// overbookedRoomConflict reports a WARN for a slot that the solver placed
// into an already-occupied room because every room of a suitable type was
// taken. The entry is still written, sharing combinedClassID with every
// other row pushed into the same room at the same slot(s), per §4.6 step 3.
func overbookedRoomConflict(runID, conflictType, sectionID, subjectID, slotID, combinedClassID string) models.TimetableConflict {
	return models.TimetableConflict{
		RunID: runID, Severity: models.SeverityWarn, ConflictType: conflictType,
		Message:   fmt.Sprintf("no room of a suitable type was free at slot %s for section %s subject %s; assigned into an occupied room as combined class %s", slotID, sectionID, subjectID, combinedClassID),
		SectionID: ptr(sectionID),
		SubjectID: ptr(subjectID),
		SlotID:    ptr(slotID),
	}
}

func findCombinedGroup(snap *snapshot.Snapshot, groupID string) models.CombinedGroup {
	for _, g := range snap.CombinedGroups {
		if g.ID == groupID {
			return g
		}
	}
	return models.CombinedGroup{}
}

func ptr(s string) *string { return &s }
