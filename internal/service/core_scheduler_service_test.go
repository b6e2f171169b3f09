package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/coresched/internal/dto"
	"github.com/uniplan/coresched/internal/models"
)

// reposStub is a minimal snapshot.Repositories implementation returning an
// empty catalog unless a test overrides one of its fields.
type reposStub struct {
	sections               []models.Section
	subjects               []models.Subject
	teachers               []models.Teacher
	rooms                  []models.Room
	slots                  []models.TimeSlot
	windows                []models.SectionTimeWindow
	teacherSubjectSections []models.TeacherSubjectSection
	sectionSubjects        []models.SectionSubject
}

func (r reposStub) ListSections(ctx context.Context, programID string, academicYearID *string) ([]models.Section, error) {
	return r.sections, nil
}
func (r reposStub) ListSubjects(ctx context.Context, programID string) ([]models.Subject, error) {
	return r.subjects, nil
}
func (r reposStub) ListTeachers(ctx context.Context) ([]models.Teacher, error) { return r.teachers, nil }
func (r reposStub) ListRooms(ctx context.Context) ([]models.Room, error)       { return r.rooms, nil }
func (r reposStub) ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error) {
	return r.slots, nil
}
func (r reposStub) ListSectionTimeWindows(ctx context.Context, sectionIDs []string) ([]models.SectionTimeWindow, error) {
	return r.windows, nil
}
func (r reposStub) ListSectionBreaks(ctx context.Context, runID string) ([]models.SectionBreak, error) {
	return nil, nil
}
func (r reposStub) ListTeacherSubjectSections(ctx context.Context, sectionIDs []string) ([]models.TeacherSubjectSection, error) {
	return r.teacherSubjectSections, nil
}
func (r reposStub) ListFixedEntries(ctx context.Context, sectionIDs []string) ([]models.FixedTimetableEntry, error) {
	return nil, nil
}
func (r reposStub) ListSpecialAllotments(ctx context.Context, sectionIDs []string) ([]models.SpecialAllotment, error) {
	return nil, nil
}
func (r reposStub) ListElectiveBlocks(ctx context.Context, sectionIDs []string) ([]models.ElectiveBlock, error) {
	return nil, nil
}
func (r reposStub) ListElectiveBlockSubjects(ctx context.Context, blockIDs []string) ([]models.ElectiveBlockSubject, error) {
	return nil, nil
}
func (r reposStub) ListSectionElectiveBlocks(ctx context.Context, sectionIDs []string) ([]models.SectionElectiveBlock, error) {
	return nil, nil
}
func (r reposStub) ListCombinedGroups(ctx context.Context, sectionIDs []string) ([]models.CombinedGroup, error) {
	return nil, nil
}
func (r reposStub) ListCombinedGroupSections(ctx context.Context, groupIDs []string) ([]models.CombinedGroupSection, error) {
	return nil, nil
}
func (r reposStub) ListSectionSubjects(ctx context.Context, sectionIDs []string) ([]models.SectionSubject, error) {
	return r.sectionSubjects, nil
}
func (r reposStub) ListTrackSubjects(ctx context.Context, programID string) ([]models.TrackSubject, error) {
	return nil, nil
}
func (r reposStub) ListSectionElectives(ctx context.Context, sectionIDs []string) ([]models.SectionElective, error) {
	return nil, nil
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	svc := NewCoreSchedulerService(Deps{Repos: reposStub{}, TrackSubjects: reposStub{}})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{})

	assert.Nil(t, resp)
	require.Error(t, err)
}

func TestGenerateOnEmptyCatalogReportsBlockingConflicts(t *testing.T) {
	svc := NewCoreSchedulerService(Deps{Repos: reposStub{}, TrackSubjects: reposStub{}, Metrics: NewMetricsService()})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{ProgramID: "prog-1"})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.HasBlocking)
	assert.NotEmpty(t, resp.Conflicts)
}

func TestGenerateOnHealthyCatalogHasNoBlockingConflicts(t *testing.T) {
	section := models.Section{ID: "sec-1", Code: "X-1", IsActive: true, Track: models.TrackCyber}
	subject := models.Subject{ID: "sub-1", Code: "MATH", SubjectType: models.SubjectTypeTheory, SessionsPerWeek: 1}
	teacher := models.Teacher{ID: "teacher-1", Code: "T1", MaxPerWeek: 10}
	room := models.Room{ID: "room-1", RoomType: models.RoomTypeClassroom, IsActive: true}
	slot := models.TimeSlot{ID: "slot-0", DayOfWeek: 0, SlotIndex: 0}

	repos := reposStub{
		sections: []models.Section{section},
		subjects: []models.Subject{subject},
		teachers: []models.Teacher{teacher},
		rooms:    []models.Room{room},
		slots:    []models.TimeSlot{slot},
		windows: []models.SectionTimeWindow{
			{ID: "win-1", SectionID: "sec-1", DayOfWeek: 0, StartSlotIndex: 0, EndSlotIndex: 0},
		},
		teacherSubjectSections: []models.TeacherSubjectSection{
			{SectionID: "sec-1", SubjectID: "sub-1", TeacherID: "teacher-1", IsActive: true},
		},
		sectionSubjects: []models.SectionSubject{
			{SectionID: "sec-1", SubjectID: "sub-1"},
		},
	}

	svc := NewCoreSchedulerService(Deps{Repos: repos, TrackSubjects: repos, Metrics: NewMetricsService()})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{ProgramID: "prog-1"})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.HasBlocking)
}
