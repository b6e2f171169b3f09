package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/uniplan/coresched/internal/coresched/capacity"
	"github.com/uniplan/coresched/internal/coresched/drive"
	"github.com/uniplan/coresched/internal/coresched/lock"
	cmodel "github.com/uniplan/coresched/internal/coresched/model"
	"github.com/uniplan/coresched/internal/coresched/snapshot"
	"github.com/uniplan/coresched/internal/coresched/validate"
	"github.com/uniplan/coresched/internal/dto"
	"github.com/uniplan/coresched/internal/models"
	"github.com/uniplan/coresched/internal/repository"
	appErrors "github.com/uniplan/coresched/pkg/errors"
	"github.com/uniplan/coresched/pkg/jobs"
)

const solverVersion = "coresched-cpsolver-1"

// trackSubjectsRepo is the narrow surface the service needs beyond
// snapshot.Repositories — loading the curriculum table validate.Run
// consults directly for elective-option resolution.
type trackSubjectsRepo interface {
	ListTrackSubjects(ctx context.Context, programID string) ([]models.TrackSubject, error)
}

// CoreSchedulerService orchestrates the full C1-C7 pipeline: snapshot load,
// prerequisite validation, capacity analysis, lock pre-application, model
// build, solver drive, and post-mortem diagnosis, backed by Postgres
// persistence and Prometheus instrumentation.
type CoreSchedulerService struct {
	repos             snapshot.Repositories
	trackSubjects     trackSubjectsRepo
	runs              *repository.RunRepository
	fixedEntries      *repository.FixedEntryRepository
	specialAllotments *repository.SpecialAllotmentRepository
	sectionBreaks     *repository.SectionBreakRepository
	queue             *jobs.Queue
	metrics           *MetricsService
	logger            *zap.Logger
	validator         *validator.Validate
}

// Deps bundles every collaborator CoreSchedulerService needs.
type Deps struct {
	Repos             snapshot.Repositories
	TrackSubjects     trackSubjectsRepo
	Runs              *repository.RunRepository
	FixedEntries      *repository.FixedEntryRepository
	SpecialAllotments *repository.SpecialAllotmentRepository
	SectionBreaks     *repository.SectionBreakRepository
	Queue             *jobs.Queue
	Metrics           *MetricsService
	Logger            *zap.Logger
	Validator         *validator.Validate
}

// NewCoreSchedulerService wires a CoreSchedulerService from its dependencies.
func NewCoreSchedulerService(d Deps) *CoreSchedulerService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := d.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &CoreSchedulerService{
		repos:             d.Repos,
		trackSubjects:     d.TrackSubjects,
		runs:              d.Runs,
		fixedEntries:      d.FixedEntries,
		specialAllotments: d.SpecialAllotments,
		sectionBreaks:     d.SectionBreaks,
		queue:             d.Queue,
		metrics:           d.Metrics,
		logger:            logger,
		validator:         validate,
	}
}

// Generate runs C1 (snapshot), C2 (validate), and C3 (capacity) only — no
// solver invocation, no persisted run — so a caller can fix curriculum data
// before spending solver time.
func (s *CoreSchedulerService) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate request")
	}

	snap, conflicts, err := s.loadAndValidate(ctx, req.ProgramID, req.AcademicYearID, "")
	if err != nil {
		return nil, err
	}

	report := capacity.Analyze(snap, nil)
	s.recordConflicts(conflicts)

	return &dto.GenerateResponse{
		Conflicts:     toConflictViews(conflicts),
		HasBlocking:   validate.HasBlockingError(conflicts),
		TeacherBudget: toTeacherBudgetViews(report.ByTeacher),
		RoomBudget:    toRoomBudgetViews(report.ByRoomType),
		SectionBudget: toSectionBudgetViews(report.BySection),
		Relaxations:   toRelaxationViews(report.Relaxations),
	}, nil
}

// Solve runs the full C1-C6 pipeline synchronously, persisting the run, its
// entries, and its conflicts regardless of outcome.
func (s *CoreSchedulerService) Solve(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid solve request")
	}

	run, err := s.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.solveRun(ctx, run, req)
}

// SolveAsync persists a CREATED run and enqueues the solve, returning
// immediately. The caller polls GetRunEntries/GetRunConflicts for the
// terminal outcome.
func (s *CoreSchedulerService) SolveAsync(ctx context.Context, req dto.SolveRequest) (*dto.SolveAsyncResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid solve request")
	}

	run, err := s.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.New("QUEUE_UNAVAILABLE", 503, "async solve queue is not configured")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: "solve_run", Payload: req}); err != nil {
		return nil, appErrors.Wrap(err, "QUEUE_ENQUEUE_FAILED", 503, "failed to enqueue solve job")
	}
	return &dto.SolveAsyncResponse{RunID: run.ID, Status: string(run.Status)}, nil
}

// AsyncSolveHandler is the jobs.Handler SolveAsync jobs are dispatched to.
func (s *CoreSchedulerService) AsyncSolveHandler(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.SolveRequest)
	if !ok {
		return fmt.Errorf("solve job %s: unexpected payload type %T", job.ID, job.Payload)
	}
	run, err := s.runs.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("solve job %s: load run: %w", job.ID, err)
	}
	if _, err := s.solveRun(ctx, run, req); err != nil {
		return fmt.Errorf("solve job %s: %w", job.ID, err)
	}
	return nil
}

func (s *CoreSchedulerService) createRun(ctx context.Context, req dto.SolveRequest) (*models.TimetableRun, error) {
	paramsJSON, err := marshalParams(req)
	if err != nil {
		return nil, appErrors.Wrap(err, "RUN_CREATE_FAILED", 500, "failed to encode run parameters")
	}

	run := &models.TimetableRun{
		ProgramID:      req.ProgramID,
		AcademicYearID: req.AcademicYearID,
		Status:         models.RunStatusCreated,
		Seed:           &req.Seed,
		SolverVersion:  solverVersion,
		Parameters:     paramsJSON,
		Notes:          req.Notes,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, "RUN_CREATE_FAILED", 500, "failed to create run")
	}
	return run, nil
}

func (s *CoreSchedulerService) solveRun(ctx context.Context, run *models.TimetableRun, req dto.SolveRequest) (*dto.SolveResponse, error) {
	start := time.Now()
	scope := "program"
	if req.AcademicYearID != nil {
		scope = "year"
	}

	if err := s.persistSectionBreaks(ctx, run.ID, req.SectionBreaks); err != nil {
		return nil, err
	}

	snap, conflicts, err := s.loadAndValidate(ctx, req.ProgramID, req.AcademicYearID, run.ID)
	if err != nil {
		return nil, err
	}

	if validate.HasBlockingError(conflicts) {
		modelConflicts := toModelConflicts(run.ID, conflicts)
		if err := s.persistOutcome(ctx, run.ID, models.RunStatusValidationFailed, nil, nil, modelConflicts); err != nil {
			return nil, err
		}
		s.recordConflicts(conflicts)
		s.metrics.RecordRunStatus(string(models.RunStatusValidationFailed))
		return &dto.SolveResponse{
			RunID:     run.ID,
			Status:    string(models.RunStatusValidationFailed),
			Conflicts: toConflictViews(conflicts),
		}, nil
	}

	required := buildRequiredSessions(snap)
	blockSessions := buildBlockSessionsPerWeek(snap)
	groupSessions := buildGroupSessionsPerWeek(snap)

	ep := lock.Apply(snap, required, blockSessions)

	opts := drive.Options{
		Seed:           req.Seed,
		MaxTime:        time.Duration(req.MaxTimeSeconds) * time.Second,
		Workers:        req.Workers,
		RequireOptimal: req.RequireOptimal,
		ModelOptions:   cmodel.Options{RelaxTeacherLoadLimits: req.RelaxTeacherLoadLimits},
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	outcome := drive.Run(ctx, run.ID, snap, ep, opts, blockSessions, groupSessions)
	report := capacity.Analyze(snap, ep.AllowedSlotsBySection)

	if err := s.persistOutcome(ctx, run.ID, outcome.Status, outcome.Objective, outcome.Entries, outcome.Conflicts); err != nil {
		return nil, err
	}

	s.logger.Sugar().Infow("run solved",
		"run_id", run.ID, "program_id", req.ProgramID, "status", outcome.Status,
		"entries", len(outcome.Entries), "conflicts", len(outcome.Conflicts), "wall_time", outcome.Stats.WallTime,
	)

	s.metrics.ObserveSolve(scope, time.Since(start))
	s.metrics.RecordRunStatus(string(outcome.Status))
	s.metrics.RecordEntriesWritten(run.ID, len(outcome.Entries))
	if outcome.Objective != nil {
		s.metrics.RecordObjective(run.ID, *outcome.Objective)
	}
	for _, c := range outcome.Conflicts {
		s.metrics.RecordConflict(string(c.Severity))
	}

	return &dto.SolveResponse{
		RunID:             run.ID,
		Status:            string(outcome.Status),
		Objective:         outcome.Objective,
		Conflicts:         conflictModelsToViews(outcome.Conflicts),
		Diagnostics:       toDiagnosticViews(outcome.Diagnostics),
		Stats:             toSolverStatsView(outcome.Stats),
		EntriesWritten:    len(outcome.Entries),
		MinimalRelaxation: toRelaxationViews(report.Relaxations),
		Warnings:          capacity.NearCapacityWarnings(report),
	}, nil
}

func (s *CoreSchedulerService) persistOutcome(ctx context.Context, runID string, status models.RunStatus, objective *float64, entries []models.TimetableEntry, conflicts []models.TimetableConflict) error {
	if err := s.runs.ReplaceEntries(ctx, runID, entries); err != nil {
		return appErrors.Wrap(err, "RUN_PERSIST_FAILED", 500, "failed to persist run entries")
	}
	if err := s.runs.ReplaceConflicts(ctx, runID, conflicts); err != nil {
		return appErrors.Wrap(err, "RUN_PERSIST_FAILED", 500, "failed to persist run conflicts")
	}
	if err := s.runs.UpdateStatus(ctx, runID, status, objective); err != nil {
		return appErrors.Wrap(err, "RUN_PERSIST_FAILED", 500, "failed to update run status")
	}
	return nil
}

func (s *CoreSchedulerService) persistSectionBreaks(ctx context.Context, runID string, reqs []dto.SectionBreakRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	breaks := make([]models.SectionBreak, 0, len(reqs))
	for _, r := range reqs {
		breaks = append(breaks, models.SectionBreak{RunID: runID, SectionID: r.SectionID, SlotID: r.SlotID})
	}
	if err := s.sectionBreaks.UpsertBatch(ctx, breaks); err != nil {
		return appErrors.Wrap(err, "SECTION_BREAK_PERSIST_FAILED", 500, "failed to persist section breaks for this run")
	}
	return nil
}

func (s *CoreSchedulerService) loadAndValidate(ctx context.Context, programID string, academicYearID *string, runID string) (*snapshot.Snapshot, []validate.Conflict, error) {
	snap, err := snapshot.Load(ctx, s.repos, programID, academicYearID, runID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "SNAPSHOT_LOAD_FAILED", 500, "failed to load curriculum snapshot")
	}
	trackSubjects, err := s.trackSubjects.ListTrackSubjects(ctx, programID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "SNAPSHOT_LOAD_FAILED", 500, "failed to load track curriculum")
	}
	conflicts := validate.Run(snap, trackSubjects)
	return snap, conflicts, nil
}

func (s *CoreSchedulerService) recordConflicts(conflicts []validate.Conflict) {
	if s.metrics == nil {
		return
	}
	for _, c := range conflicts {
		s.metrics.RecordConflict(string(c.Severity))
	}
}

// ListRuns returns every run for a program, most recent first.
func (s *CoreSchedulerService) ListRuns(ctx context.Context, programID string) ([]dto.RunView, error) {
	runs, err := s.runs.ListByProgram(ctx, programID)
	if err != nil {
		return nil, appErrors.Wrap(err, "RUN_LIST_FAILED", 500, "failed to list runs")
	}
	out := make([]dto.RunView, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunView(r))
	}
	return out, nil
}

// GetRunEntries returns every persisted entry for a run.
func (s *CoreSchedulerService) GetRunEntries(ctx context.Context, runID string) ([]dto.EntryView, error) {
	if _, err := s.runs.FindByID(ctx, runID); err != nil {
		return nil, notFoundOrWrap(err, "run not found")
	}
	entries, err := s.runs.ListEntries(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, "RUN_ENTRIES_FAILED", 500, "failed to list run entries")
	}
	out := make([]dto.EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryView(e))
	}
	return out, nil
}

// GetRunConflicts returns every persisted conflict for a run.
func (s *CoreSchedulerService) GetRunConflicts(ctx context.Context, runID string) ([]dto.ConflictView, error) {
	if _, err := s.runs.FindByID(ctx, runID); err != nil {
		return nil, notFoundOrWrap(err, "run not found")
	}
	conflicts, err := s.runs.ListConflicts(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, "RUN_CONFLICTS_FAILED", 500, "failed to list run conflicts")
	}
	out := make([]dto.ConflictView, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictModelToView(c))
	}
	return out, nil
}

// UpsertFixedEntry creates or updates a hard lock in an ordinary room.
func (s *CoreSchedulerService) UpsertFixedEntry(ctx context.Context, req dto.UpsertFixedEntryRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fixed entry payload")
	}

	entry := &models.FixedTimetableEntry{
		ID:        req.ID,
		SectionID: req.SectionID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		RoomID:    req.RoomID,
		SlotID:    req.SlotID,
		IsActive:  isActiveOrDefault(req.IsActive),
	}
	if err := s.fixedEntries.Upsert(ctx, entry); err != nil {
		return "", appErrors.Wrap(err, "FIXED_ENTRY_UPSERT_FAILED", 500, "failed to upsert fixed entry")
	}
	return entry.ID, nil
}

// DeleteFixedEntry removes a fixed entry by id.
func (s *CoreSchedulerService) DeleteFixedEntry(ctx context.Context, id string) error {
	if err := s.fixedEntries.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, "FIXED_ENTRY_DELETE_FAILED", 500, "failed to delete fixed entry")
	}
	return nil
}

// UpsertSpecialAllotment creates or updates a hard lock in a special room.
func (s *CoreSchedulerService) UpsertSpecialAllotment(ctx context.Context, req dto.UpsertSpecialAllotmentRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid special allotment payload")
	}

	allotment := &models.SpecialAllotment{
		ID:        req.ID,
		SectionID: req.SectionID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		RoomID:    req.RoomID,
		SlotID:    req.SlotID,
		IsActive:  isActiveOrDefault(req.IsActive),
		Reason:    req.Reason,
	}
	if err := s.specialAllotments.Upsert(ctx, allotment); err != nil {
		return "", appErrors.Wrap(err, "SPECIAL_ALLOTMENT_UPSERT_FAILED", 500, "failed to upsert special allotment")
	}
	return allotment.ID, nil
}

// DeleteSpecialAllotment removes a special allotment by id.
func (s *CoreSchedulerService) DeleteSpecialAllotment(ctx context.Context, id string) error {
	if err := s.specialAllotments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, "SPECIAL_ALLOTMENT_DELETE_FAILED", 500, "failed to delete special allotment")
	}
	return nil
}

func isActiveOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func notFoundOrWrap(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return appErrors.Wrap(err, "LOOKUP_FAILED", 500, message)
}

// buildRequiredSessions computes each section's required (THEORY/LAB)
// session occurrence counts before any lock is applied: sessions_per_week
// for both subject types, since lock.Apply tracks occurrences, not slots.
func buildRequiredSessions(snap *snapshot.Snapshot) map[string]map[string]int {
	out := map[string]map[string]int{}
	for _, s := range snap.Sections {
		for _, subjectID := range snap.SectionSubjects[s.ID] {
			subj, ok := snap.SubjectByID[subjectID]
			if !ok {
				continue
			}
			if out[s.ID] == nil {
				out[s.ID] = map[string]int{}
			}
			out[s.ID][subjectID] = subj.SessionsPerWeek
		}
	}
	return out
}

func buildBlockSessionsPerWeek(snap *snapshot.Snapshot) map[string]int {
	out := map[string]int{}
	for _, b := range snap.ElectiveBlocks {
		pairs := snap.ElectiveBlockSubjects[b.ID]
		if len(pairs) == 0 {
			continue
		}
		if subj, ok := snap.SubjectByID[pairs[0].SubjectID]; ok {
			out[b.ID] = subj.SessionsPerWeek
		}
	}
	return out
}

func buildGroupSessionsPerWeek(snap *snapshot.Snapshot) map[string]int {
	out := map[string]int{}
	for _, g := range snap.CombinedGroups {
		if subj, ok := snap.SubjectByID[g.SubjectID]; ok {
			out[g.ID] = subj.SessionsPerWeek
		}
	}
	return out
}

func marshalParams(req dto.SolveRequest) (types.JSONText, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return types.JSONText(raw), nil
}

func toModelConflicts(runID string, conflicts []validate.Conflict) []models.TimetableConflict {
	out := make([]models.TimetableConflict, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, models.TimetableConflict{
			RunID:        runID,
			Severity:     c.Severity,
			ConflictType: c.ConflictType,
			Message:      c.Message,
			SectionID:    c.SectionID,
			TeacherID:    c.TeacherID,
			SubjectID:    c.SubjectID,
			RoomID:       c.RoomID,
			SlotID:       c.SlotID,
			Metadata:     types.JSONText(c.MetadataJSON()),
		})
	}
	return out
}
