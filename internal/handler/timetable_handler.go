package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniplan/coresched/internal/dto"
	"github.com/uniplan/coresched/internal/service"
	appErrors "github.com/uniplan/coresched/pkg/errors"
	"github.com/uniplan/coresched/pkg/response"
)

// coreScheduler is the narrow surface TimetableHandler drives.
type coreScheduler interface {
	Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error)
	Solve(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error)
	SolveAsync(ctx context.Context, req dto.SolveRequest) (*dto.SolveAsyncResponse, error)
	ListRuns(ctx context.Context, programID string) ([]dto.RunView, error)
	GetRunEntries(ctx context.Context, runID string) ([]dto.EntryView, error)
	GetRunConflicts(ctx context.Context, runID string) ([]dto.ConflictView, error)
	UpsertFixedEntry(ctx context.Context, req dto.UpsertFixedEntryRequest) (string, error)
	DeleteFixedEntry(ctx context.Context, id string) error
	UpsertSpecialAllotment(ctx context.Context, req dto.UpsertSpecialAllotmentRequest) (string, error)
	DeleteSpecialAllotment(ctx context.Context, id string) error
}

// TimetableHandler exposes the CORE's generate/solve/run/lock endpoints.
type TimetableHandler struct {
	service coreScheduler
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.CoreSchedulerService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Validate curriculum data and analyze capacity without solving
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRequest true "Generate payload"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/runs/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Solve godoc
// @Summary Run a synchronous solve for one program/academic year scope
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.SolveRequest true "Solve payload"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/runs/solve [post]
func (h *TimetableHandler) Solve(c *gin.Context) {
	var req dto.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid solve payload"))
		return
	}
	result, err := h.service.Solve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SolveAsync godoc
// @Summary Enqueue a solve and return immediately with a run id
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.SolveRequest true "Solve payload"
// @Success 202 {object} response.Envelope
// @Router /api/v1/timetable/runs/solve-async [post]
func (h *TimetableHandler) SolveAsync(c *gin.Context) {
	var req dto.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid solve payload"))
		return
	}
	result, err := h.service.SolveAsync(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// ListRuns godoc
// @Summary List runs for a program
// @Tags Timetable
// @Produce json
// @Param programId query string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/runs [get]
func (h *TimetableHandler) ListRuns(c *gin.Context) {
	programID := c.Query("programId")
	if programID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "programId query parameter is required"))
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), programID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// GetRunEntries godoc
// @Summary Get the persisted entries for a run
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/runs/{id}/entries [get]
func (h *TimetableHandler) GetRunEntries(c *gin.Context) {
	entries, err := h.service.GetRunEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// GetRunConflicts godoc
// @Summary Get the persisted conflicts for a run
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/runs/{id}/conflicts [get]
func (h *TimetableHandler) GetRunConflicts(c *gin.Context) {
	conflicts, err := h.service.GetRunConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// UpsertFixedEntry godoc
// @Summary Create or update a hard lock in an ordinary room
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Fixed entry ID"
// @Param payload body dto.UpsertFixedEntryRequest true "Fixed entry payload"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/fixed-entries/{id} [put]
func (h *TimetableHandler) UpsertFixedEntry(c *gin.Context) {
	var req dto.UpsertFixedEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fixed entry payload"))
		return
	}
	req.ID = c.Param("id")
	id, err := h.service.UpsertFixedEntry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": id}, nil)
}

// DeleteFixedEntry godoc
// @Summary Delete a fixed entry
// @Tags Timetable
// @Param id path string true "Fixed entry ID"
// @Success 204
// @Router /api/v1/timetable/fixed-entries/{id} [delete]
func (h *TimetableHandler) DeleteFixedEntry(c *gin.Context) {
	if err := h.service.DeleteFixedEntry(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpsertSpecialAllotment godoc
// @Summary Create or update a hard lock in a special room
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Special allotment ID"
// @Param payload body dto.UpsertSpecialAllotmentRequest true "Special allotment payload"
// @Success 200 {object} response.Envelope
// @Router /api/v1/timetable/special-allotments/{id} [put]
func (h *TimetableHandler) UpsertSpecialAllotment(c *gin.Context) {
	var req dto.UpsertSpecialAllotmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid special allotment payload"))
		return
	}
	req.ID = c.Param("id")
	id, err := h.service.UpsertSpecialAllotment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": id}, nil)
}

// DeleteSpecialAllotment godoc
// @Summary Delete a special allotment
// @Tags Timetable
// @Param id path string true "Special allotment ID"
// @Success 204
// @Router /api/v1/timetable/special-allotments/{id} [delete]
func (h *TimetableHandler) DeleteSpecialAllotment(c *gin.Context) {
	if err := h.service.DeleteSpecialAllotment(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
