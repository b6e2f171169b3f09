// Package snapshot loads a read-only curriculum view for one solve scope
// (a program, optionally narrowed to one academic year) and indexes it into
// dense id-keyed maps so downstream components never walk relations.
package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/uniplan/coresched/internal/models"
)

// Repositories is the minimal read surface snapshot.Load needs. Each method
// mirrors an abstract table from the persisted state layout.
type Repositories interface {
	ListSections(ctx context.Context, programID string, academicYearID *string) ([]models.Section, error)
	ListSubjects(ctx context.Context, programID string) ([]models.Subject, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error)
	ListSectionTimeWindows(ctx context.Context, sectionIDs []string) ([]models.SectionTimeWindow, error)
	ListSectionBreaks(ctx context.Context, runID string) ([]models.SectionBreak, error)
	ListTeacherSubjectSections(ctx context.Context, sectionIDs []string) ([]models.TeacherSubjectSection, error)
	ListFixedEntries(ctx context.Context, sectionIDs []string) ([]models.FixedTimetableEntry, error)
	ListSpecialAllotments(ctx context.Context, sectionIDs []string) ([]models.SpecialAllotment, error)
	ListElectiveBlocks(ctx context.Context, sectionIDs []string) ([]models.ElectiveBlock, error)
	ListElectiveBlockSubjects(ctx context.Context, blockIDs []string) ([]models.ElectiveBlockSubject, error)
	ListSectionElectiveBlocks(ctx context.Context, sectionIDs []string) ([]models.SectionElectiveBlock, error)
	ListCombinedGroups(ctx context.Context, sectionIDs []string) ([]models.CombinedGroup, error)
	ListCombinedGroupSections(ctx context.Context, groupIDs []string) ([]models.CombinedGroupSection, error)
	ListSectionSubjects(ctx context.Context, sectionIDs []string) ([]models.SectionSubject, error)
	ListTrackSubjects(ctx context.Context, programID string) ([]models.TrackSubject, error)
	ListSectionElectives(ctx context.Context, sectionIDs []string) ([]models.SectionElective, error)
}

// SlotKey identifies a (day, index) pair, matching a TimeSlot row.
type SlotKey struct {
	Day   int
	Index int
}

// Snapshot is the dense, read-only view a solve scope operates against.
type Snapshot struct {
	ProgramID      string
	AcademicYearID *string
	RunID          string

	Sections []models.Section
	Subjects []models.Subject
	Teachers []models.Teacher
	Rooms    []models.Room
	Slots    []models.TimeSlot

	SectionByID map[string]models.Section
	SubjectByID map[string]models.Subject
	TeacherByID map[string]models.Teacher
	RoomByID    map[string]models.Room
	SlotByID    map[string]models.TimeSlot
	SlotIDByKey map[SlotKey]string

	// Windows[sectionID][day] = sorted slot_index list within the window.
	Windows map[string]map[int][]int
	// AllowedSlots[sectionID] = set of slot ids inside that section's windows,
	// minus this run's SectionBreaks.
	AllowedSlots map[string]map[string]bool

	Breaks []models.SectionBreak

	TeacherSubjectSections []models.TeacherSubjectSection
	// RequiredTeacher[sectionID][subjectID] = teacherID
	RequiredTeacher map[string]map[string]string

	FixedEntries      []models.FixedTimetableEntry
	SpecialAllotments []models.SpecialAllotment

	ElectiveBlocks          []models.ElectiveBlock
	ElectiveBlockSubjects   map[string][]models.ElectiveBlockSubject // blockID -> pairs
	SectionElectiveBlocks   map[string][]string                      // sectionID -> blockIDs
	BlockSections           map[string][]string                      // blockID -> sectionIDs

	CombinedGroups        []models.CombinedGroup
	CombinedGroupSections map[string][]string // groupID -> sectionIDs

	// SectionSubjects[sectionID] = required subject ids for that section
	// (explicit override if present, else curriculum-derived).
	SectionSubjects map[string][]string
	// SectionElectivePick[sectionID] = chosen elective subject id (only used
	// when the section maps no ElectiveBlock).
	SectionElectivePick map[string]string
}

// Load builds a Snapshot for the given scope. academicYearID == nil means a
// program-global solve across all years.
func Load(ctx context.Context, repos Repositories, programID string, academicYearID *string, runID string) (*Snapshot, error) {
	sections, err := repos.ListSections(ctx, programID, academicYearID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list sections: %w", err)
	}
	sectionIDs := make([]string, 0, len(sections))
	for _, s := range sections {
		sectionIDs = append(sectionIDs, s.ID)
	}

	subjects, err := repos.ListSubjects(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list subjects: %w", err)
	}
	teachers, err := repos.ListTeachers(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list teachers: %w", err)
	}
	rooms, err := repos.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list rooms: %w", err)
	}
	slots, err := repos.ListTimeSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list time slots: %w", err)
	}
	windows, err := repos.ListSectionTimeWindows(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list section time windows: %w", err)
	}
	breaks, err := repos.ListSectionBreaks(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list section breaks: %w", err)
	}
	tss, err := repos.ListTeacherSubjectSections(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list teacher subject sections: %w", err)
	}
	fixed, err := repos.ListFixedEntries(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list fixed entries: %w", err)
	}
	special, err := repos.ListSpecialAllotments(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list special allotments: %w", err)
	}
	blocks, err := repos.ListElectiveBlocks(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list elective blocks: %w", err)
	}
	blockIDs := make([]string, 0, len(blocks))
	for _, b := range blocks {
		blockIDs = append(blockIDs, b.ID)
	}
	blockSubjects, err := repos.ListElectiveBlockSubjects(ctx, blockIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list elective block subjects: %w", err)
	}
	secElecBlocks, err := repos.ListSectionElectiveBlocks(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list section elective blocks: %w", err)
	}
	combined, err := repos.ListCombinedGroups(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list combined groups: %w", err)
	}
	groupIDs := make([]string, 0, len(combined))
	for _, g := range combined {
		groupIDs = append(groupIDs, g.ID)
	}
	combinedSections, err := repos.ListCombinedGroupSections(ctx, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list combined group sections: %w", err)
	}
	sectionSubjects, err := repos.ListSectionSubjects(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list section subjects: %w", err)
	}
	trackSubjects, err := repos.ListTrackSubjects(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list track subjects: %w", err)
	}
	sectionElectives, err := repos.ListSectionElectives(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list section electives: %w", err)
	}

	snap := &Snapshot{
		ProgramID:      programID,
		AcademicYearID: academicYearID,
		RunID:          runID,

		Sections: sections,
		Subjects: subjects,
		Teachers: teachers,
		Rooms:    rooms,
		Slots:    slots,
		Breaks:   breaks,

		TeacherSubjectSections: tss,
		FixedEntries:           fixed,
		SpecialAllotments:      special,
		ElectiveBlocks:         blocks,
		CombinedGroups:         combined,

		SectionByID: indexSections(sections),
		SubjectByID: indexSubjects(subjects),
		TeacherByID: indexTeachers(teachers),
		RoomByID:    indexRooms(rooms),
		SlotByID:    indexSlots(slots),
		SlotIDByKey: slotKeyIndex(slots),

		ElectiveBlockSubjects: map[string][]models.ElectiveBlockSubject{},
		SectionElectiveBlocks: map[string][]string{},
		BlockSections:         map[string][]string{},
		CombinedGroupSections: map[string][]string{},
		SectionSubjects:       map[string][]string{},
		SectionElectivePick:   map[string]string{},
		RequiredTeacher:       map[string]map[string]string{},
	}

	for _, bs := range blockSubjects {
		snap.ElectiveBlockSubjects[bs.BlockID] = append(snap.ElectiveBlockSubjects[bs.BlockID], bs)
	}
	for _, sb := range secElecBlocks {
		snap.SectionElectiveBlocks[sb.SectionID] = append(snap.SectionElectiveBlocks[sb.SectionID], sb.BlockID)
		snap.BlockSections[sb.BlockID] = append(snap.BlockSections[sb.BlockID], sb.SectionID)
	}
	for _, gs := range combinedSections {
		snap.CombinedGroupSections[gs.GroupID] = append(snap.CombinedGroupSections[gs.GroupID], gs.SectionID)
	}
	for _, t := range tss {
		if !t.IsActive {
			continue
		}
		if snap.RequiredTeacher[t.SectionID] == nil {
			snap.RequiredTeacher[t.SectionID] = map[string]string{}
		}
		snap.RequiredTeacher[t.SectionID][t.SubjectID] = t.TeacherID
	}

	snap.Windows = buildWindows(windows)
	snap.AllowedSlots = buildAllowedSlots(sections, snap.Windows, snap.SlotIDByKey, snap.SlotByID, breaks)
	snap.SectionSubjects = buildSectionSubjects(sections, sectionSubjects, trackSubjects)
	for _, se := range sectionElectives {
		snap.SectionElectivePick[se.SectionID] = se.SubjectID
	}
	overridden := map[string]bool{}
	for _, o := range sectionSubjects {
		overridden[o.SectionID] = true
	}
	for sectionID, pick := range snap.SectionElectivePick {
		sec, ok := snap.SectionByID[sectionID]
		if ok && sec.Track == models.TrackCore && !overridden[sectionID] && !snap.UsesElectiveBlocks(sectionID) {
			snap.SectionSubjects[sectionID] = append(snap.SectionSubjects[sectionID], pick)
		}
	}

	return snap, nil
}

func indexSections(in []models.Section) map[string]models.Section {
	out := make(map[string]models.Section, len(in))
	for _, s := range in {
		out[s.ID] = s
	}
	return out
}

func indexSubjects(in []models.Subject) map[string]models.Subject {
	out := make(map[string]models.Subject, len(in))
	for _, s := range in {
		out[s.ID] = s
	}
	return out
}

func indexTeachers(in []models.Teacher) map[string]models.Teacher {
	out := make(map[string]models.Teacher, len(in))
	for _, t := range in {
		out[t.ID] = t
	}
	return out
}

func indexRooms(in []models.Room) map[string]models.Room {
	out := make(map[string]models.Room, len(in))
	for _, r := range in {
		out[r.ID] = r
	}
	return out
}

func indexSlots(in []models.TimeSlot) map[string]models.TimeSlot {
	out := make(map[string]models.TimeSlot, len(in))
	for _, s := range in {
		out[s.ID] = s
	}
	return out
}

func slotKeyIndex(in []models.TimeSlot) map[SlotKey]string {
	out := make(map[SlotKey]string, len(in))
	for _, s := range in {
		out[SlotKey{Day: s.DayOfWeek, Index: s.SlotIndex}] = s.ID
	}
	return out
}

func buildWindows(windows []models.SectionTimeWindow) map[string]map[int][]int {
	out := map[string]map[int][]int{}
	byDay := map[string]map[int][2]int{}
	for _, w := range windows {
		if byDay[w.SectionID] == nil {
			byDay[w.SectionID] = map[int][2]int{}
		}
		byDay[w.SectionID][w.DayOfWeek] = [2]int{w.StartSlotIndex, w.EndSlotIndex}
	}
	for sectionID, days := range byDay {
		out[sectionID] = map[int][]int{}
		for day, rng := range days {
			indices := make([]int, 0, rng[1]-rng[0]+1)
			for i := rng[0]; i <= rng[1]; i++ {
				indices = append(indices, i)
			}
			out[sectionID][day] = indices
		}
	}
	return out
}

func buildAllowedSlots(
	sections []models.Section,
	windows map[string]map[int][]int,
	slotIDByKey map[SlotKey]string,
	slotByID map[string]models.TimeSlot,
	breaks []models.SectionBreak,
) map[string]map[string]bool {
	out := map[string]map[string]bool{}
	for _, s := range sections {
		allowed := map[string]bool{}
		for day, indices := range windows[s.ID] {
			for _, idx := range indices {
				if slotID, ok := slotIDByKey[SlotKey{Day: day, Index: idx}]; ok {
					allowed[slotID] = true
				}
			}
		}
		out[s.ID] = allowed
	}
	for _, b := range breaks {
		if out[b.SectionID] != nil {
			delete(out[b.SectionID], b.SlotID)
		}
	}
	return out
}

// buildSectionSubjects resolves each section's required subject list:
// explicit SectionSubject override takes precedence; otherwise the
// TrackSubject curriculum's non-elective subjects for (program, year, track).
// Load then appends a CORE section's chosen elective when the section has no
// override and maps no ElectiveBlock (block precedence); block subjects are
// modelled separately, never listed here.
func buildSectionSubjects(
	sections []models.Section,
	overrides []models.SectionSubject,
	trackSubjects []models.TrackSubject,
) map[string][]string {
	overrideBySection := map[string][]string{}
	for _, o := range overrides {
		overrideBySection[o.SectionID] = append(overrideBySection[o.SectionID], o.SubjectID)
	}

	byTrackYear := map[string][]models.TrackSubject{}
	key := func(programID, yearID string, track models.Track) string {
		return programID + "|" + yearID + "|" + string(track)
	}
	for _, ts := range trackSubjects {
		k := key(ts.ProgramID, ts.AcademicYearID, ts.Track)
		byTrackYear[k] = append(byTrackYear[k], ts)
	}

	out := map[string][]string{}
	for _, s := range sections {
		if ov, ok := overrideBySection[s.ID]; ok {
			out[s.ID] = ov
			continue
		}
		k := key(s.ProgramID, s.AcademicYearID, s.Track)
		var subjectIDs []string
		for _, ts := range byTrackYear[k] {
			if !ts.IsElective {
				subjectIDs = append(subjectIDs, ts.SubjectID)
			}
		}
		sort.Strings(subjectIDs)
		out[s.ID] = subjectIDs
	}
	return out
}

// ElectiveOptions returns the TrackSubject-declared elective subject ids for
// a section's (program, year, track), used by the validator to check the
// single-pick rule when the section maps no ElectiveBlock.
func (s *Snapshot) ElectiveOptions(sectionID string, trackSubjects []models.TrackSubject) []string {
	sec, ok := s.SectionByID[sectionID]
	if !ok {
		return nil
	}
	var out []string
	for _, ts := range trackSubjects {
		if ts.ProgramID == sec.ProgramID && ts.AcademicYearID == sec.AcademicYearID && ts.Track == sec.Track && ts.IsElective {
			out = append(out, ts.SubjectID)
		}
	}
	return out
}

// UsesElectiveBlocks reports whether a section maps any ElectiveBlock, in
// which case a lone SectionElective pick is not consulted (block precedence
// per the open-question resolution recorded in DESIGN.md).
func (s *Snapshot) UsesElectiveBlocks(sectionID string) bool {
	return len(s.SectionElectiveBlocks[sectionID]) > 0
}
