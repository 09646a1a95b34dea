package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"rehabclinic/course-builder/internal/arrangement"
	"rehabclinic/course-builder/internal/catalog"
	"rehabclinic/course-builder/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ArrangementHandler exposes arrangement sessions. Every successful
// mutation answers the full plan so clients re-render from it.
type ArrangementHandler struct {
	arrangementService service.ArrangementService
	logger             *zap.Logger
}

func NewArrangementHandler(arrangementService service.ArrangementService, logger *zap.Logger) *ArrangementHandler {
	return &ArrangementHandler{arrangementService: arrangementService, logger: logger}
}

// --- DTOs ---

type OpenSessionRequest struct {
	PatientID string `json:"patientId" binding:"required"`
	Days      int    `json:"days" binding:"omitempty,min=1,max=366"`
}

type DayDescriptionRequest struct {
	Description string `json:"description"`
}

type AddExerciseRequest struct {
	ExerciseID string `json:"exerciseId" binding:"required"`
}

type ReorderRequest struct {
	PlacementIDs []string `json:"placementIds" binding:"required"`
}

type DragRequest struct {
	Source      arrangement.DragSource `json:"source" binding:"required,oneof=library day"`
	ExerciseID  string                 `json:"exerciseId"`
	PlacementID string                 `json:"placementId"`
	FromDay     int                    `json:"fromDay"`
}

// RejectionResponse is sent with 409 when an action is refused.
type RejectionResponse struct {
	Error  string             `json:"error"`
	Reason arrangement.Reason `json:"reason"`
}

// LibraryResponse is the library panel of a session.
type LibraryResponse struct {
	Query   catalog.Query `json:"query"`
	Page    catalog.Page  `json:"page"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"` // Latest fetch failure; Page still holds the last good page
}

// MapSnapshotToResponse converts a library snapshot to its DTO.
func MapSnapshotToResponse(snap catalog.Snapshot) LibraryResponse {
	resp := LibraryResponse{Query: snap.Query, Page: snap.Page, Loading: snap.Loading}
	if resp.Page.Items == nil {
		resp.Page.Items = []catalog.Hit{}
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

// --- Session lifecycle ---

// OpenSession godoc
// @Summary Start arranging a course for a patient
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body OpenSessionRequest true "Patient and initial day count"
// @Success 201 {object} service.PlanView
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 403 {object} gin.H "Patient not managed by this therapist"
// @Router /therapist/arrangements [post]
func (h *ArrangementHandler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	patientID, err := primitive.ObjectIDFromHex(req.PatientID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid patient ID format.")
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	view, err := h.arrangementService.Open(c.Request.Context(), therapistID, patientID, req.Days)
	if err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetSession godoc
// @Summary Get the current plan of a session
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Success 200 {object} service.PlanView
// @Failure 404 {object} gin.H "Session not found"
// @Router /therapist/arrangements/{sid} [get]
func (h *ArrangementHandler) GetSession(c *gin.Context) {
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.Get(therapistID, sid)
	})
}

// DiscardSession godoc
// @Summary Cancel a session without creating a course
// @Tags Arrangement
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Success 204 "Discarded"
// @Failure 404 {object} gin.H "Session not found"
// @Router /therapist/arrangements/{sid} [delete]
func (h *ArrangementHandler) DiscardSession(c *gin.Context) {
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}
	if err := h.arrangementService.Discard(therapistID, c.Param("sid")); err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Days ---

// AddDay godoc
// @Summary Append an empty day
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/days [post]
func (h *ArrangementHandler) AddDay(c *gin.Context) {
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.AddDay(therapistID, sid)
	})
}

// DeleteDay godoc
// @Summary Delete a day and renumber the following days
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Success 200 {object} service.PlanView
// @Failure 404 {object} gin.H "Day not found"
// @Failure 409 {object} RejectionResponse "The plan must keep one day"
// @Router /therapist/arrangements/{sid}/days/{day} [delete]
func (h *ArrangementHandler) DeleteDay(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.DeleteDay(therapistID, sid, day)
	})
}

// DuplicateDay godoc
// @Summary Copy a day, with fresh placement ids, to the end of the plan
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/days/{day}/duplicate [post]
func (h *ArrangementHandler) DuplicateDay(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.DuplicateDay(therapistID, sid, day)
	})
}

// UpdateDay godoc
// @Summary Set a day's description
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Param request body DayDescriptionRequest true "Description"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/days/{day} [patch]
func (h *ArrangementHandler) UpdateDay(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	var req DayDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.UpdateDayDescription(therapistID, sid, day, req.Description)
	})
}

// --- Exercises ---

// AddExercise godoc
// @Summary Place a catalog exercise at the end of a day
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Param request body AddExerciseRequest true "Catalog exercise"
// @Success 200 {object} service.PlanView
// @Failure 404 {object} gin.H "Day or exercise not found"
// @Failure 409 {object} RejectionResponse "Exercise already on this day"
// @Router /therapist/arrangements/{sid}/days/{day}/exercises [post]
func (h *ArrangementHandler) AddExercise(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	var req AddExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.AddExercise(c.Request.Context(), therapistID, sid, day, req.ExerciseID)
	})
}

// ReorderExercises godoc
// @Summary Reorder a day's exercises
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Param request body ReorderRequest true "Every placement id of the day, in the new order"
// @Success 200 {object} service.PlanView
// @Failure 409 {object} RejectionResponse "Not a permutation of the day's placements"
// @Router /therapist/arrangements/{sid}/days/{day}/order [put]
func (h *ArrangementHandler) ReorderExercises(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.ReorderExercises(therapistID, sid, day, req.PlacementIDs)
	})
}

// UpdatePlacement godoc
// @Summary Edit repetitions, sets or notes of a placed exercise
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Param pid path string true "Placement ID"
// @Param request body arrangement.PlacementUpdate true "Fields to change"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/days/{day}/exercises/{pid} [patch]
func (h *ArrangementHandler) UpdatePlacement(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	var req arrangement.PlacementUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.UpdatePlacement(therapistID, sid, day, c.Param("pid"), req)
	})
}

// RemoveExercise godoc
// @Summary Remove a placed exercise
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param day path int true "Day number"
// @Param pid path string true "Placement ID"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/days/{day}/exercises/{pid} [delete]
func (h *ArrangementHandler) RemoveExercise(c *gin.Context) {
	day, ok := dayParam(c)
	if !ok {
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.RemoveExercise(therapistID, sid, day, c.Param("pid"))
	})
}

// MoveExercise godoc
// @Summary Move a placed exercise within or across days
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param request body service.MoveRequest true "Move"
// @Success 200 {object} service.PlanView
// @Failure 409 {object} RejectionResponse "Exercise already on the target day"
// @Router /therapist/arrangements/{sid}/moves [post]
func (h *ArrangementHandler) MoveExercise(c *gin.Context) {
	var req service.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.MoveExercise(therapistID, sid, req)
	})
}

// --- Drag state and library ---

// BeginDrag godoc
// @Summary Record the item the therapist picked up
// @Tags Arrangement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param request body DragRequest true "Dragged item"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/drag [put]
func (h *ArrangementHandler) BeginDrag(c *gin.Context) {
	var req DragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	item := arrangement.DragItem{
		Source:      req.Source,
		ExerciseID:  req.ExerciseID,
		PlacementID: req.PlacementID,
		FromDay:     req.FromDay,
	}
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.BeginDrag(therapistID, sid, item)
	})
}

// EndDrag godoc
// @Summary Drop or cancel the active drag without changing the plan
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Success 200 {object} service.PlanView
// @Router /therapist/arrangements/{sid}/drag [delete]
func (h *ArrangementHandler) EndDrag(c *gin.Context) {
	h.respond(c, func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error) {
		return h.arrangementService.EndDrag(therapistID, sid)
	})
}

// BrowseLibrary godoc
// @Summary Load a catalog page into the session's library panel
// @Tags Arrangement
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param q query string false "Text in name or description"
// @Param page query int false "Page (1-based)"
// @Success 200 {object} LibraryResponse
// @Failure 504 {object} gin.H "Catalog did not answer in time"
// @Router /therapist/arrangements/{sid}/library [get]
func (h *ArrangementHandler) BrowseLibrary(c *gin.Context) {
	var q CatalogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	snap, err := h.arrangementService.BrowseLibrary(c.Request.Context(), therapistID, c.Param("sid"), q.toQuery())
	if err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapSnapshotToResponse(snap))
}

// --- helpers ---

func (h *ArrangementHandler) respond(c *gin.Context, fn func(therapistID primitive.ObjectID, sid string) (*service.PlanView, error)) {
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}
	view, err := fn(therapistID, c.Param("sid"))
	if err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func dayParam(c *gin.Context) (int, bool) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil || day < 1 {
		abortWithError(c, http.StatusBadRequest, "Day must be a positive integer.")
		return 0, false
	}
	return day, true
}

// statusClientClosedRequest is recorded when the caller hung up before the
// answer was ready.
const statusClientClosedRequest = 499

// abortWithServiceError maps arrangement and course errors to HTTP answers.
func abortWithServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var rejection *arrangement.Rejection
	if errors.As(err, &rejection) {
		c.AbortWithStatusJSON(http.StatusConflict, RejectionResponse{Error: rejection.Error(), Reason: rejection.Reason})
		return
	}

	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrDayNotFound),
		errors.Is(err, service.ErrPlacementNotFound),
		errors.Is(err, service.ErrExerciseNotFound),
		errors.Is(err, service.ErrPatientNotFound),
		errors.Is(err, service.ErrCourseNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionAccessDenied),
		errors.Is(err, service.ErrPatientNotManaged),
		errors.Is(err, service.ErrPatientNotRole),
		errors.Is(err, service.ErrCourseAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrValidationFailed),
		errors.Is(err, service.ErrCourseTitleRequired),
		errors.Is(err, service.ErrInvalidSubmittedPlan):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmptyCourse):
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusGatewayTimeout, "The exercise catalog did not answer in time.")
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the body.
		logger.Debug("Arrangement request cancelled", zap.String("path", c.FullPath()))
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		logger.Error("Arrangement request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred.")
	}
}
