package api

import (
	"errors"
	"net/http"
	"time"

	"rehabclinic/course-builder/internal/catalog"
	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ExerciseHandler holds the exercise service dependency.
type ExerciseHandler struct {
	exerciseService service.ExerciseService
	logger          *zap.Logger
}

// NewExerciseHandler creates a new ExerciseHandler.
func NewExerciseHandler(exerciseService service.ExerciseService, logger *zap.Logger) *ExerciseHandler {
	return &ExerciseHandler{exerciseService: exerciseService, logger: logger}
}

// --- DTOs for API (Data Transfer Objects) ---

// CreateExerciseRequest defines the expected JSON for creating an exercise.
type CreateExerciseRequest struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	Category        string `json:"category"`    // e.g., "Mobility", "Strength"
	MuscleGroup     string `json:"muscleGroup"` // e.g., "Knee", "Shoulder"
	DurationMinutes int    `json:"durationMinutes" binding:"min=0"`
	VideoURL        string `json:"videoUrl" binding:"omitempty,url"`
}

// CatalogQuery binds the catalog search query string.
type CatalogQuery struct {
	Text        string `form:"q"`
	Category    string `form:"category"`
	MuscleGroup string `form:"muscleGroup"`
	Page        int    `form:"page" binding:"omitempty,min=1,max=10000"`
	PageSize    int    `form:"pageSize" binding:"omitempty,min=1,max=1000"`
}

func (q CatalogQuery) toQuery() catalog.Query {
	return catalog.Query{
		Text:        q.Text,
		Category:    q.Category,
		MuscleGroup: q.MuscleGroup,
		Page:        q.Page,
		PageSize:    q.PageSize,
	}
}

type ImageUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

// ConfirmImageRequest names the object the client finished uploading.
type ConfirmImageRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

// ExerciseResponse is the DTO for returning exercise details.
type ExerciseResponse struct {
	ID              string    `json:"id"`
	CreatedBy       string    `json:"createdBy"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category,omitempty"`
	MuscleGroup     string    `json:"muscleGroup,omitempty"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	VideoURL        string    `json:"videoUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MapExerciseToResponse converts a domain.Exercise to ExerciseResponse DTO.
func MapExerciseToResponse(ex *domain.Exercise) ExerciseResponse {
	if ex == nil {
		return ExerciseResponse{}
	}
	return ExerciseResponse{
		ID:              ex.ID.Hex(),
		CreatedBy:       ex.CreatedBy.Hex(),
		Name:            ex.Name,
		Description:     ex.Description,
		Category:        ex.Category,
		MuscleGroup:     ex.MuscleGroup,
		DurationMinutes: ex.DurationMinutes,
		VideoURL:        ex.VideoURL,
		CreatedAt:       ex.CreatedAt,
		UpdatedAt:       ex.UpdatedAt,
	}
}

// --- Handler Methods ---

// SearchExercises godoc
// @Summary Search the exercise catalog
// @Tags Exercises
// @Produce json
// @Security BearerAuth
// @Param q query string false "Text in name or description"
// @Param category query string false "Category"
// @Param muscleGroup query string false "Muscle group"
// @Param page query int false "Page (1-based)"
// @Param pageSize query int false "Page size"
// @Success 200 {object} catalog.Page
// @Failure 400 {object} gin.H "Invalid query"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /exercises [get]
func (h *ExerciseHandler) SearchExercises(c *gin.Context) {
	var q CatalogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	page, err := h.exerciseService.Search(c.Request.Context(), q.toQuery())
	if err != nil {
		h.logger.Error("Catalog search failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to search exercises.")
		return
	}
	if page.Items == nil {
		page.Items = []catalog.Hit{}
	}
	c.JSON(http.StatusOK, page)
}

// GetExercise godoc
// @Summary Get one catalog exercise
// @Tags Exercises
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exercise ID"
// @Success 200 {object} ExerciseResponse
// @Failure 404 {object} gin.H "Exercise not found"
// @Router /exercises/{id} [get]
func (h *ExerciseHandler) GetExercise(c *gin.Context) {
	exerciseID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid exercise ID format.")
		return
	}

	exercise, err := h.exerciseService.GetExerciseByID(c.Request.Context(), exerciseID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapExerciseToResponse(exercise))
}

// CreateExercise godoc
// @Summary Create a new exercise
// @Description Adds an exercise to the catalog on behalf of the authenticated therapist.
// @Tags Exercises
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param exercise body CreateExerciseRequest true "Exercise details"
// @Success 201 {object} ExerciseResponse "Exercise created successfully"
// @Failure 400 {object} gin.H "Invalid input (validation error)"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden (not a therapist)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /exercises [post]
func (h *ExerciseHandler) CreateExercise(c *gin.Context) {
	var req CreateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	exercise, err := h.exerciseService.CreateExercise(c.Request.Context(), therapistID, service.ExerciseInput{
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		MuscleGroup:     req.MuscleGroup,
		DurationMinutes: req.DurationMinutes,
		VideoURL:        req.VideoURL,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, MapExerciseToResponse(exercise))
}

// RequestImageUploadURL godoc
// @Summary Get a presigned URL for uploading an exercise image
// @Tags Exercises
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exercise ID"
// @Param request body ImageUploadRequest true "Image content type"
// @Success 200 {object} service.UploadURLResponse
// @Failure 400 {object} gin.H "Invalid content type"
// @Failure 403 {object} gin.H "Exercise belongs to another therapist"
// @Failure 404 {object} gin.H "Exercise not found"
// @Router /exercises/{id}/image-upload-url [post]
func (h *ExerciseHandler) RequestImageUploadURL(c *gin.Context) {
	var req ImageUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	exerciseID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid exercise ID format.")
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	resp, err := h.exerciseService.RequestImageUploadURL(c.Request.Context(), therapistID, exerciseID, req.ContentType)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmImageUpload godoc
// @Summary Use an uploaded image for the exercise
// @Description Call after the PUT to the presigned URL succeeds. The previous image is removed.
// @Tags Exercises
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exercise ID"
// @Param request body ConfirmImageRequest true "Uploaded object key"
// @Success 200 {object} ExerciseResponse
// @Failure 400 {object} gin.H "Key does not belong to this exercise"
// @Failure 403 {object} gin.H "Exercise belongs to another therapist"
// @Failure 404 {object} gin.H "Exercise not found"
// @Failure 409 {object} gin.H "Nothing uploaded under the key yet"
// @Router /exercises/{id}/image [put]
func (h *ExerciseHandler) ConfirmImageUpload(c *gin.Context) {
	var req ConfirmImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	exerciseID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid exercise ID format.")
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	exercise, err := h.exerciseService.ConfirmImageUpload(c.Request.Context(), therapistID, exerciseID, req.ObjectKey)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapExerciseToResponse(exercise))
}

// DeleteExercise godoc
// @Summary Delete an exercise from the catalog
// @Tags Exercises
// @Security BearerAuth
// @Param id path string true "Exercise ID"
// @Success 204 "Deleted"
// @Failure 403 {object} gin.H "Exercise belongs to another therapist"
// @Failure 404 {object} gin.H "Exercise not found"
// @Router /exercises/{id} [delete]
func (h *ExerciseHandler) DeleteExercise(c *gin.Context) {
	exerciseID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid exercise ID format.")
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	if err := h.exerciseService.DeleteExercise(c.Request.Context(), therapistID, exerciseID); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ExerciseHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExerciseNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrExerciseAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrValidationFailed),
		errors.Is(err, service.ErrInvalidContentType),
		errors.Is(err, service.ErrInvalidImageKey):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrImageNotUploaded):
		abortWithError(c, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Exercise request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred.")
	}
}
