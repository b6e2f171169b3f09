// Package capacity computes required-vs-available slot budgets per teacher,
// room type, section, and combined group, and proposes minimal relaxations
// for any teacher overload it finds.
package capacity

import (
	"fmt"

	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/models"
)

// Contributor breaks down one teacher's required load by source.
type Contributor struct {
	Kind      string // "SECTION_SUBJECT" or "COMBINED_GROUP"
	SectionID string
	SubjectID string
	Slots     int
}

// TeacherBudget is one row of the by-teacher budget map.
type TeacherBudget struct {
	TeacherID    string
	Required     int
	Available    int
	Contributors []Contributor
}

func (b TeacherBudget) Overloaded() bool { return b.Required > b.Available }

// RoomTypeBudget is one row of the by-room-type budget map.
type RoomTypeBudget struct {
	RoomType  models.RoomType
	Required  int
	Available int
}

func (b RoomTypeBudget) Scarce() bool { return b.Required > b.Available }

// SectionBudget is one row of the by-section budget map.
type SectionBudget struct {
	SectionID string
	Required  int
	Available int
}

func (b SectionBudget) Deficit() bool { return b.Required > b.Available }

// CombinedGroupBudget reports the free-slot intersection size for a group.
type CombinedGroupBudget struct {
	GroupID          string
	IntersectionSize int
	SessionsPerWeek  int
}

func (b CombinedGroupBudget) Collapsed() bool { return b.IntersectionSize < b.SessionsPerWeek }

// Relaxation is a minimal max_per_day bump suggestion for an overloaded teacher.
type Relaxation struct {
	TeacherID          string
	CurrentMaxPerDay   int
	SuggestedMaxPerDay int
}

// Report bundles every budget map computed for a snapshot.
type Report struct {
	ByTeacher       []TeacherBudget
	ByRoomType      []RoomTypeBudget
	BySection       []SectionBudget
	ByCombinedGroup []CombinedGroupBudget
	Relaxations     []Relaxation
}

// Analyze computes all four budget maps plus minimal relaxation suggestions.
// lockedSlots, when non-nil, gives each section's post-lock available slot
// set (e.g. lock.EffectiveProblem.AllowedSlotsBySection); bySection then
// reports availability net of locked slot indices per §4.3. Pass nil when
// no lock has been applied yet (the C1-C3 generate-only path).
func Analyze(snap *snapshot.Snapshot, lockedSlots map[string]map[string]bool) Report {
	return Report{
		ByTeacher:       byTeacher(snap),
		ByRoomType:      byRoomType(snap),
		BySection:       bySection(snap, lockedSlots),
		ByCombinedGroup: byCombinedGroup(snap),
		Relaxations:     relaxations(snap),
	}
}

// NearCapacityWarnings flags budgets approaching their limit without yet
// exceeding it: a teacher at or above 90% of weekly capacity, or a room
// type at or above 95% utilization, per §4.6's solve-time warning pass.
// Overloaded()/Scarce() budgets (ratio >= 1.0) already surface as their own
// conflicts elsewhere, so they're excluded here to avoid double-reporting.
func NearCapacityWarnings(report Report) []string {
	var out []string
	for _, b := range report.ByTeacher {
		if b.Available <= 0 {
			continue
		}
		ratio := float64(b.Required) / float64(b.Available)
		if ratio >= 0.90 && ratio < 1.0 {
			out = append(out, fmt.Sprintf("teacher %s is at %.0f%% of weekly capacity (%d/%d slots)", b.TeacherID, ratio*100, b.Required, b.Available))
		}
	}
	for _, b := range report.ByRoomType {
		if b.Available <= 0 {
			continue
		}
		ratio := float64(b.Required) / float64(b.Available)
		if ratio >= 0.95 && ratio < 1.0 {
			out = append(out, fmt.Sprintf("room type %s is at %.0f%% utilization (%d/%d slots)", b.RoomType, ratio*100, b.Required, b.Available))
		}
	}
	return out
}

func activeDaysNotOff(teacher models.Teacher, totalDays int) int {
	if teacher.WeeklyOffDay == nil {
		return totalDays
	}
	return totalDays - 1
}

func byTeacher(snap *snapshot.Snapshot) []TeacherBudget {
	required := map[string]int{}
	contributors := map[string][]Contributor{}
	countedGroup := map[string]bool{}

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
			slots := subj.RequiredSlots()
			required[teacherID] += slots
			contributors[teacherID] = append(contributors[teacherID], Contributor{
				Kind: "SECTION_SUBJECT", SectionID: s.ID, SubjectID: subjectID, Slots: slots,
			})
		}
	}
	for _, g := range snap.CombinedGroups {
		if g.TeacherID == nil || countedGroup[g.ID] {
			continue
		}
		countedGroup[g.ID] = true
		subj, ok := snap.SubjectByID[g.SubjectID]
		if !ok {
			continue
		}
		slots := subj.RequiredSlots()
		required[*g.TeacherID] += slots
		contributors[*g.TeacherID] = append(contributors[*g.TeacherID], Contributor{
			Kind: "COMBINED_GROUP", SubjectID: g.SubjectID, Slots: slots,
		})
	}

	out := make([]TeacherBudget, 0, len(snap.Teachers))
	for _, t := range snap.Teachers {
		available := t.MaxPerDay * activeDaysNotOff(t, models.DaysPerWeek)
		out = append(out, TeacherBudget{
			TeacherID:    t.ID,
			Required:     required[t.ID],
			Available:    available,
			Contributors: contributors[t.ID],
		})
	}
	return out
}

func byRoomType(snap *snapshot.Snapshot) []RoomTypeBudget {
	var theoryRequired, labRequired int
	for _, s := range snap.Sections {
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok {
				continue
			}
			if subj.SubjectType == models.SubjectTypeLab {
				labRequired += subj.RequiredSlots()
			} else {
				theoryRequired += subj.RequiredSlots()
			}
		}
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

	slotsPerDay := 0
	perDay := map[int]int{}
	for _, sl := range snap.Slots {
		perDay[sl.DayOfWeek]++
	}
	for _, n := range perDay {
		if n > slotsPerDay {
			slotsPerDay = n
		}
	}
	activeDays := len(perDay)

	return []RoomTypeBudget{
		{RoomType: models.RoomTypeClassroom, Required: theoryRequired, Available: theoryRooms * activeDays * slotsPerDay},
		{RoomType: models.RoomTypeLab, Required: labRequired, Available: labRooms * activeDays * slotsPerDay},
	}
}

func bySection(snap *snapshot.Snapshot, lockedSlots map[string]map[string]bool) []SectionBudget {
	out := make([]SectionBudget, 0, len(snap.Sections))
	for _, s := range snap.Sections {
		if !s.IsActive {
			continue
		}
		required := 0
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			if subj, ok := snap.SubjectByID[subjectID]; ok {
				required += subj.RequiredSlots()
			}
		}
		available := len(snap.AllowedSlots[s.ID])
		if lockedSlots != nil {
			available = len(lockedSlots[s.ID])
		}
		out = append(out, SectionBudget{
			SectionID: s.ID,
			Required:  required,
			Available: available,
		})
	}
	return out
}

func byCombinedGroup(snap *snapshot.Snapshot) []CombinedGroupBudget {
	out := make([]CombinedGroupBudget, 0, len(snap.CombinedGroups))
	for _, g := range snap.CombinedGroups {
		members := snap.CombinedGroupSections[g.ID]
		var intersection map[string]bool
		for i, sectionID := range members {
			allowed := snap.AllowedSlots[sectionID]
			if i == 0 {
				intersection = cloneSet(allowed)
			} else {
				intersection = intersectSet(intersection, allowed)
			}
		}
		subj := snap.SubjectByID[g.SubjectID]
		out = append(out, CombinedGroupBudget{
			GroupID:          g.ID,
			IntersectionSize: len(intersection),
			SessionsPerWeek:  subj.SessionsPerWeek,
		})
	}
	return out
}

func relaxations(snap *snapshot.Snapshot) []Relaxation {
	var out []Relaxation
	for _, b := range byTeacher(snap) {
		if !b.Overloaded() {
			continue
		}
		t := snap.TeacherByID[b.TeacherID]
		days := activeDaysNotOff(t, models.DaysPerWeek)
		if days <= 0 {
			continue
		}
		suggested := t.MaxPerDay
		for suggested*days < b.Required {
			suggested++
		}
		out = append(out, Relaxation{
			TeacherID:          b.TeacherID,
			CurrentMaxPerDay:   t.MaxPerDay,
			SuggestedMaxPerDay: suggested,
		})
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
