package model

import (
	"strconv"

	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
	"github.com/uniplan/coresched/pkg/cpsolver"
)

// buildPerDayCaps enforces constraint 5: per-day subject cap per section.
// Locked occurrences on a day already shrank RemainingSessions at the
// session-count level; here the cap only needs to bound the free variables
// themselves, since a locked slot is never a candidate slot for a variable.
func buildPerDayCaps(m *cpsolver.Model, b *Built, sectionDayVars map[string][]int, snap *snapshot.Snapshot) {
	for key, ids := range sectionDayVars {
		if len(ids) == 0 {
			continue
		}
		sectionID := b.Vars[ids[0]].SectionID
		subjectID := b.Vars[ids[0]].SubjectID
		subj, ok := snap.SubjectByID[subjectID]
		if !ok {
			continue
		}
		vars, _ := boolTerms(b.Vars, ids)
		m.AddSumAtMost("per_day_cap:"+key, vars, float64(subj.MaxPerDay))
	}
}

// buildSectionAtMostOne enforces constraint 7 over free variables: a section
// occupies at most one slot-consuming event per slot. Locked occupancy is
// already guaranteed non-overlapping by validation (§4.2 checks 9–11) and
// by lock pre-application removing the slot from every variable's domain.
func buildSectionAtMostOne(m *cpsolver.Model, b *Built, sectionSlotVars map[string][]int) {
	for key, ids := range sectionSlotVars {
		if len(ids) <= 1 {
			continue
		}
		vars, _ := boolTerms(b.Vars, ids)
		m.AddSumAtMost("section_at_most_one:"+key, vars, 1)
	}
}

// buildTeacherAtMostOne enforces constraint 9 over free variables, for the
// same reason buildSectionAtMostOne only needs to cover free variables.
func buildTeacherAtMostOne(m *cpsolver.Model, b *Built, teacherSlotVars map[string][]int) {
	for key, ids := range teacherSlotVars {
		if len(ids) <= 1 {
			continue
		}
		vars, _ := boolTerms(b.Vars, ids)
		m.AddSumAtMost("teacher_at_most_one:"+key, vars, 1)
	}
}

// buildMaxContinuous enforces constraint 11: in any window of
// max_continuous+1 consecutive same-day slots, a teacher's total occupancy
// is bounded by max_continuous.
func buildMaxContinuous(m *cpsolver.Model, b *Built, teacherSlotVars map[string][]int, snap *snapshot.Snapshot, slots []slotInfo) {
	byDay := groupByDay(slots)
	for _, t := range snap.Teachers {
		for day, daySlots := range byDay {
			window := t.MaxContinuous + 1
			if window > len(daySlots) {
				continue
			}
			for start := 0; start+window <= len(daySlots); start++ {
				var ids []int
				for i := 0; i < window; i++ {
					slotID := daySlots[start+i].id
					ids = append(ids, teacherSlotVars[t.ID+"|"+slotID]...)
				}
				if len(ids) == 0 {
					continue
				}
				vars, _ := boolTerms(b.Vars, ids)
				name := "max_continuous:" + t.ID + ":" + strconv.Itoa(day) + ":" + strconv.Itoa(start)
				m.AddSumAtMost(name, vars, float64(t.MaxContinuous))
			}
		}
	}
}

// buildTeacherWeeklyDailyCaps enforces constraint 12, skipped entirely when
// the caller sets SolveOptions.RelaxTeacherLoadLimits.
func buildTeacherWeeklyDailyCaps(m *cpsolver.Model, b *Built, teacherSlotVars map[string][]int, snap *snapshot.Snapshot, slots []slotInfo) {
	byDay := groupByDay(slots)
	for _, t := range snap.Teachers {
		var weekIDs []int
		for _, daySlots := range byDay {
			var dayIDs []int
			for _, sl := range daySlots {
				dayIDs = append(dayIDs, teacherSlotVars[t.ID+"|"+sl.id]...)
			}
			weekIDs = append(weekIDs, dayIDs...)
			if len(dayIDs) > 0 {
				vars, _ := boolTerms(b.Vars, dayIDs)
				m.AddSumAtMost("teacher_daily_cap:"+t.ID, vars, float64(t.MaxPerDay))
			}
		}
		if len(weekIDs) > 0 {
			vars, _ := boolTerms(b.Vars, weekIDs)
			m.AddSumAtMost("teacher_weekly_cap:"+t.ID, vars, float64(t.MaxPerWeek))
		}
	}
}

// buildRoomCapacity enforces constraint 13: per slot, the number of
// THEORY-consuming variables is bounded by the count of non-special
// CLASSROOM+LT rooms, and LAB-consuming variables by the count of LAB rooms.
func buildRoomCapacity(m *cpsolver.Model, b *Built, snap *snapshot.Snapshot, slots []slotInfo) {
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

	theoryBySlot := map[string][]int{}
	labBySlot := map[string][]int{}
	for idx, v := range b.Vars {
		switch v.Kind {
		case KindTheory, KindBlock, KindCombined:
			theoryBySlot[v.SlotID] = append(theoryBySlot[v.SlotID], idx)
		case KindLabStart:
			for _, sid := range v.SlotIDs {
				labBySlot[sid] = append(labBySlot[sid], idx)
			}
		}
	}
	for _, sl := range slots {
		if ids, ok := theoryBySlot[sl.id]; ok && len(ids) > 0 {
			vars, _ := boolTerms(b.Vars, ids)
			m.AddSumAtMost("room_capacity_theory:"+sl.id, vars, float64(theoryRooms))
		}
		if ids, ok := labBySlot[sl.id]; ok && len(ids) > 0 {
			vars, _ := boolTerms(b.Vars, ids)
			m.AddSumAtMost("room_capacity_lab:"+sl.id, vars, float64(labRooms))
		}
	}
}

// buildCompactness enforces constraint 14 (hard 3-gap rule) and returns the
// per-(section,slot) gap indicator variables for constraint 15 (soft
// penalty), wired into the objective by setObjective.
func buildCompactness(m *cpsolver.Model, b *Built, sectionSlotVars map[string][]int, snap *snapshot.Snapshot, slots []slotInfo) []cpsolver.BoolVar {
	byDay := groupByDay(slots)
	var gaps []cpsolver.BoolVar

	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		for day, daySlots := range byDay {
			occVars := make([]cpsolver.BoolVar, len(daySlots))
			occKnown := make([]bool, len(daySlots)) // true if occ is a real aux var (free slot has candidates)
			for i, sl := range daySlots {
				ids := sectionSlotVars[s.ID+"|"+sl.id]
				if len(ids) == 0 {
					continue
				}
				occ := m.NewBoolVar("occ:" + s.ID + ":" + sl.id)
				vars, coeffs := boolTerms(b.Vars, ids)
				vars = append(vars, occ)
				coeffs = append(coeffs, -1)
				m.AddLinear("occ_def:"+s.ID+":"+sl.id, vars, coeffs, cpsolver.OpEqual, 0)
				occVars[i] = occ
				occKnown[i] = true
			}

			// Hard 3-gap rule: for i<j with j-i-1 > 3, occ[i]+occ[j]-Σoccarray(i+1..j-1) <= 1.
			for i := 0; i < len(daySlots); i++ {
				if !occKnown[i] {
					continue
				}
				for j := i + 1; j < len(daySlots); j++ {
					if !occKnown[j] {
						continue
					}
					if j-i-1 <= 3 {
						continue
					}
					vars := []cpsolver.BoolVar{occVars[i], occVars[j]}
					coeffs := []float64{1, 1}
					for k := i + 1; k < j; k++ {
						if occKnown[k] {
							vars = append(vars, occVars[k])
							coeffs = append(coeffs, -1)
						}
					}
					m.AddLinear("compact_hard:"+s.ID+":"+strconv.Itoa(day)+":"+strconv.Itoa(i)+":"+strconv.Itoa(j), vars, coeffs, cpsolver.OpLessOrEqual, 1)
				}
			}

			// Soft gap: gap[i] = 1 iff occ[i]==0 and some occupied slot exists
			// before and after i. Upper bounds: gap <= 1-occ[i],
			// gap <= Σocc[0..i-1], gap <= Σocc[i+1..]. Lower bounds: for every
			// (before, after) pair, gap >= occ[b] + occ[a] - occ[i] - 1.
			for i := 1; i < len(daySlots)-1; i++ {
				if !occKnown[i] {
					continue
				}
				var beforeIDs, afterIDs []cpsolver.BoolVar
				for k := 0; k < i; k++ {
					if occKnown[k] {
						beforeIDs = append(beforeIDs, occVars[k])
					}
				}
				for k := i + 1; k < len(daySlots); k++ {
					if occKnown[k] {
						afterIDs = append(afterIDs, occVars[k])
					}
				}
				if len(beforeIDs) == 0 || len(afterIDs) == 0 {
					continue
				}
				gap := m.NewBoolVar("gap:" + s.ID + ":" + strconv.Itoa(day) + ":" + strconv.Itoa(i))
				// gap <= 1 - occ[i]  =>  gap + occ[i] <= 1
				m.AddLinear("gap_excl_occ:"+s.ID+":"+strconv.Itoa(day)+":"+strconv.Itoa(i), []cpsolver.BoolVar{gap, occVars[i]}, []float64{1, 1}, cpsolver.OpLessOrEqual, 1)
				// gap <= sum(before) (so gap can only be 1 if something occupied before)
				bv := append([]cpsolver.BoolVar{gap}, beforeIDs...)
				bc := append([]float64{1}, negOnes(len(beforeIDs))...)
				m.AddLinear("gap_needs_before:"+s.ID+":"+strconv.Itoa(day)+":"+strconv.Itoa(i), bv, bc, cpsolver.OpLessOrEqual, 0)
				av := append([]cpsolver.BoolVar{gap}, afterIDs...)
				ac := append([]float64{1}, negOnes(len(afterIDs))...)
				m.AddLinear("gap_needs_after:"+s.ID+":"+strconv.Itoa(day)+":"+strconv.Itoa(i), av, ac, cpsolver.OpLessOrEqual, 0)
				for _, before := range beforeIDs {
					for _, after := range afterIDs {
						m.AddLinear("gap_forced:"+s.ID+":"+strconv.Itoa(day)+":"+strconv.Itoa(i), []cpsolver.BoolVar{gap, before, after, occVars[i]}, []float64{1, -1, -1, 1}, cpsolver.OpGreaterOrEqual, -1)
					}
				}
				gaps = append(gaps, gap)
			}
		}
	}
	return gaps
}

func negOnes(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = -1
	}
	return out
}

// setObjective sets the lexicographic objective: primary weight pulls every
// scheduled event to the earliest possible slot; the secondary term
// penalizes internal empty slots left by compactness.
func setObjective(m *cpsolver.Model, b *Built, gaps []cpsolver.BoolVar) {
	var vars []cpsolver.BoolVar
	var coeffs []float64
	for _, v := range b.Vars {
		vars = append(vars, v.Var)
		coeffs = append(coeffs, primaryWeight*float64(v.SlotIndex+1))
	}
	m.Minimize(vars, coeffs)

	if len(gaps) > 0 {
		gapCoeffs := make([]float64, len(gaps))
		for i := range gapCoeffs {
			gapCoeffs[i] = 1
		}
		m.AddToObjective(gaps, gapCoeffs)
	}
}
