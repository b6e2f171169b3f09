// Package model builds the CP-SAT-style boolean model — decision variables,
// hard constraints, and the two-tier objective — from a snapshot and its
// effective (post-lock) problem, ready for pkg/cpsolver to search.
package model

import (
	"sort"
	"strconv"

	"github.com/uniplan/coresched/internal/coresched/lock"
	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
	"github.com/uniplan/coresched/pkg/cpsolver"
)

const primaryWeight = 1000.0

// VarKind distinguishes the four decision variable families of §4.5.
type VarKind int

const (
	KindTheory VarKind = iota
	KindLabStart
	KindBlock
	KindCombined
)

// VarMeta is the domain metadata attached to one boolean decision variable,
// so the driver (C6) can translate a solved assignment back into entries.
type VarMeta struct {
	Kind      VarKind
	Var       cpsolver.BoolVar
	SectionID string // THEORY/LAB
	SubjectID string // THEORY/LAB
	TeacherID string
	BlockID   string // KindBlock
	GroupID   string // KindCombined
	Day       int
	SlotIndex int
	SlotID    string   // THEORY/Block/Combined: occupied slot
	SlotIDs   []string // LAB: every covered slot, start first
}

// Options governs the optional, relax-flag-gated constraints.
type Options struct {
	RelaxTeacherLoadLimits bool
}

// Built is the compiled model plus the variable metadata needed to read back
// a solved assignment.
type Built struct {
	Model *cpsolver.Model
	Vars  []VarMeta
}

type slotInfo struct {
	id  string
	day int
	idx int
}

// Build constructs the decision variables and hard constraints from §4.5 and
// sets the two-tier lexicographic objective. Locked events get no variables
// of their own: lock pre-application has already removed their slots from
// every domain, and no separate constraint forces a fixed entry's variable.
func Build(snap *snapshot.Snapshot, ep *lock.EffectiveProblem, opts Options, blockSessionsPerWeek map[string]int, groupSessionsPerWeek map[string]int) *Built {
	m := cpsolver.NewModel()
	b := &Built{Model: m}

	if ep.Infeasible {
		m.MarkInfeasible()
		return b
	}

	slotsSorted := sortedSlots(snap)

	theoryVars := map[string][]int{}  // "section|subject|slot" bucket helpers below use indices into b.Vars
	sectionSlotVars := map[string][]int{}
	teacherSlotVars := map[string][]int{}
	blockSlotVars := map[string][]int{}
	groupSlotVars := map[string][]int{}
	sectionDayVars := map[string][]int{} // "section|subject|day" -> THEORY x and LAB lab_start var indices
	blockDayVars := map[string][]int{}

	addVar := func(meta VarMeta) int {
		idx := len(b.Vars)
		b.Vars = append(b.Vars, meta)
		return idx
	}

	addToSectionSlot := func(sectionID, slotID string, idx int) {
		key := sectionID + "|" + slotID
		sectionSlotVars[key] = append(sectionSlotVars[key], idx)
	}
	addToTeacherSlot := func(teacherID, slotID string, idx int) {
		key := teacherID + "|" + slotID
		teacherSlotVars[key] = append(teacherSlotVars[key], idx)
	}

	// --- THEORY x[section, subject, slot] ---
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok || subj.SubjectType != models.SubjectTypeTheory {
				continue
			}
			teacherID := snap.RequiredTeacher[s.ID][subjectID]
			if teacherID == "" {
				continue
			}
			allowed := ep.AllowedSlotsBySection[s.ID]
			disallowed := ep.TeacherDisallowedSlot[teacherID]
			teacher := snap.TeacherByID[teacherID]
			var ids []int
			for _, sl := range slotsSorted {
				if !allowed[sl.id] || disallowed[sl.id] || teacher.IsOffOn(sl.day) {
					continue
				}
				v := m.NewBoolVar("x:" + s.ID + ":" + subjectID + ":" + sl.id)
				idx := addVar(VarMeta{Kind: KindTheory, Var: v, SectionID: s.ID, SubjectID: subjectID, TeacherID: teacherID, Day: sl.day, SlotIndex: sl.idx, SlotID: sl.id})
				ids = append(ids, idx)
				addToSectionSlot(s.ID, sl.id, idx)
				addToTeacherSlot(teacherID, sl.id, idx)
				sectionDayVars[dayKey(s.ID, subjectID, sl.day)] = append(sectionDayVars[dayKey(s.ID, subjectID, sl.day)], idx)
			}
			theoryVars[s.ID+"|"+subjectID] = ids

			remaining := ep.RemainingSessions[s.ID][subjectID]
			vars, coeffs := boolTerms(b.Vars, ids)
			if remaining < 0 {
				m.MarkInfeasible()
			} else {
				m.AddSumEqual("session_count_theory:"+s.ID+":"+subjectID, vars, float64(remaining))
			}
			_ = coeffs
		}
	}

	// --- LAB lab_start[section, subject, day, start_index] ---
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok || subj.SubjectType != models.SubjectTypeLab {
				continue
			}
			teacherID := snap.RequiredTeacher[s.ID][subjectID]
			if teacherID == "" {
				continue
			}
			allowed := ep.AllowedSlotsBySection[s.ID]
			disallowed := ep.TeacherDisallowedSlot[teacherID]
			teacher := snap.TeacherByID[teacherID]

			byDay := groupByDay(slotsSorted)
			var ids []int
			for day, daySlots := range byDay {
				for start := 0; start+subj.LabBlockSizeSlots <= len(daySlots) && !teacher.IsOffOn(day); start++ {
					run := daySlots[start : start+subj.LabBlockSizeSlots]
					ok := true
					for _, sl := range run {
						if !allowed[sl.id] || disallowed[sl.id] {
							ok = false
							break
						}
					}
					if !ok {
						continue
					}
					covered := make([]string, len(run))
					for i, sl := range run {
						covered[i] = sl.id
					}
					v := m.NewBoolVar("lab:" + s.ID + ":" + subjectID + ":" + run[0].id)
					idx := addVar(VarMeta{Kind: KindLabStart, Var: v, SectionID: s.ID, SubjectID: subjectID, TeacherID: teacherID, Day: day, SlotIndex: run[0].idx, SlotID: run[0].id, SlotIDs: covered})
					ids = append(ids, idx)
					for _, sid := range covered {
						addToSectionSlot(s.ID, sid, idx)
						addToTeacherSlot(teacherID, sid, idx)
					}
					sectionDayVars[dayKey(s.ID, subjectID, day)] = append(sectionDayVars[dayKey(s.ID, subjectID, day)], idx)
				}
			}
			remaining := ep.RemainingSessions[s.ID][subjectID]
			vars, _ := boolTerms(b.Vars, ids)
			if remaining < 0 {
				m.MarkInfeasible()
			} else {
				m.AddSumEqual("session_count_lab:"+s.ID+":"+subjectID, vars, float64(remaining))
			}
		}
	}

	// --- elective block z[block, slot] ---
	for _, blk := range snap.ElectiveBlocks {
		if !blk.IsActive {
			continue
		}
		members := snap.BlockSections[blk.ID]
		pairs := snap.ElectiveBlockSubjects[blk.ID]
		if len(members) == 0 || len(pairs) == 0 {
			continue
		}
		var intersection map[string]bool
		for i, sectionID := range members {
			allowed := ep.AllowedSlotsBySection[sectionID]
			if i == 0 {
				intersection = cloneSet(allowed)
			} else {
				intersection = intersectSet(intersection, allowed)
			}
		}
		var ids []int
		for _, sl := range slotsSorted {
			if !intersection[sl.id] {
				continue
			}
			anyTeacherBlocked := false
			for _, p := range pairs {
				if ep.TeacherDisallowedSlot[p.TeacherID][sl.id] || snap.TeacherByID[p.TeacherID].IsOffOn(sl.day) {
					anyTeacherBlocked = true
					break
				}
			}
			if anyTeacherBlocked {
				continue
			}
			v := m.NewBoolVar("z:" + blk.ID + ":" + sl.id)
			idx := addVar(VarMeta{Kind: KindBlock, Var: v, BlockID: blk.ID, Day: sl.day, SlotIndex: sl.idx, SlotID: sl.id})
			ids = append(ids, idx)
			blockSlotVars[blk.ID+"|"+sl.id] = append(blockSlotVars[blk.ID+"|"+sl.id], idx)
			for _, sectionID := range members {
				addToSectionSlot(sectionID, sl.id, idx)
			}
			for _, p := range pairs {
				addToTeacherSlot(p.TeacherID, sl.id, idx)
			}
			blockDayVars[blk.ID+"|"+strconv.Itoa(sl.day)] = append(blockDayVars[blk.ID+"|"+strconv.Itoa(sl.day)], idx)
		}
		remaining := blockSessionsPerWeek[blk.ID] - ep.BlockLockedCount[blk.ID]
		vars, _ := boolTerms(b.Vars, ids)
		if remaining < 0 {
			m.MarkInfeasible()
		} else {
			m.AddSumEqual("session_count_block:"+blk.ID, vars, float64(remaining))
		}

		// Per-day cap: the smallest max_per_day among the block's subjects.
		dayCap := -1
		for _, p := range pairs {
			if subj, ok := snap.SubjectByID[p.SubjectID]; ok && (dayCap < 0 || subj.MaxPerDay < dayCap) {
				dayCap = subj.MaxPerDay
			}
		}
		for day := range groupByDay(slotsSorted) {
			if dayIDs := blockDayVars[blk.ID+"|"+strconv.Itoa(day)]; dayCap >= 0 && len(dayIDs) > 0 {
				dayVars, _ := boolTerms(b.Vars, dayIDs)
				m.AddSumAtMost("per_day_cap_block:"+blk.ID+":"+strconv.Itoa(day), dayVars, float64(dayCap))
			}
		}
	}

	// --- combined group combined_x[group, slot] ---
	for _, g := range snap.CombinedGroups {
		members := snap.CombinedGroupSections[g.ID]
		if len(members) < 2 || g.TeacherID == nil {
			continue
		}
		var intersection map[string]bool
		for i, sectionID := range members {
			allowed := ep.AllowedSlotsBySection[sectionID]
			if i == 0 {
				intersection = cloneSet(allowed)
			} else {
				intersection = intersectSet(intersection, allowed)
			}
		}
		var ids []int
		for _, sl := range slotsSorted {
			if !intersection[sl.id] || ep.TeacherDisallowedSlot[*g.TeacherID][sl.id] || snap.TeacherByID[*g.TeacherID].IsOffOn(sl.day) {
				continue
			}
			v := m.NewBoolVar("combined:" + g.ID + ":" + sl.id)
			idx := addVar(VarMeta{Kind: KindCombined, Var: v, GroupID: g.ID, TeacherID: *g.TeacherID, Day: sl.day, SlotIndex: sl.idx, SlotID: sl.id})
			ids = append(ids, idx)
			groupSlotVars[g.ID+"|"+sl.id] = append(groupSlotVars[g.ID+"|"+sl.id], idx)
			for _, sectionID := range members {
				addToSectionSlot(sectionID, sl.id, idx)
			}
			addToTeacherSlot(*g.TeacherID, sl.id, idx)
		}
		subj := snap.SubjectByID[g.SubjectID]
		vars, _ := boolTerms(b.Vars, ids)
		m.AddSumEqual("session_count_combined:"+g.ID, vars, float64(subj.SessionsPerWeek))
	}

	buildPerDayCaps(m, b, sectionDayVars, snap)
	buildSectionAtMostOne(m, b, sectionSlotVars)
	buildTeacherAtMostOne(m, b, teacherSlotVars)
	buildMaxContinuous(m, b, teacherSlotVars, snap, slotsSorted)
	if !opts.RelaxTeacherLoadLimits {
		buildTeacherWeeklyDailyCaps(m, b, teacherSlotVars, snap, slotsSorted)
	}
	buildRoomCapacity(m, b, snap, slotsSorted)
	compactVars := buildCompactness(m, b, sectionSlotVars, snap, slotsSorted)

	setObjective(m, b, compactVars)

	return b
}

func dayKey(sectionID, subjectID string, day int) string {
	return sectionID + "|" + subjectID + "|" + strconv.Itoa(day)
}

func sortedSlots(snap *snapshot.Snapshot) []slotInfo {
	out := make([]slotInfo, 0, len(snap.Slots))
	for _, s := range snap.Slots {
		out = append(out, slotInfo{id: s.ID, day: s.DayOfWeek, idx: s.SlotIndex})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].day != out[j].day {
			return out[i].day < out[j].day
		}
		return out[i].idx < out[j].idx
	})
	return out
}

func groupByDay(slots []slotInfo) map[int][]slotInfo {
	out := map[int][]slotInfo{}
	for _, s := range slots {
		out[s.day] = append(out[s.day], s)
	}
	for day := range out {
		sort.Slice(out[day], func(i, j int) bool { return out[day][i].idx < out[day][j].idx })
	}
	return out
}

func boolTerms(all []VarMeta, ids []int) ([]cpsolver.BoolVar, []float64) {
	vars := make([]cpsolver.BoolVar, len(ids))
	coeffs := make([]float64, len(ids))
	for i, idx := range ids {
		vars[i] = all[idx].Var
		coeffs[i] = 1
	}
	return vars, coeffs
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
