package api

import (
	"net/http"
	"time"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type CourseHandler struct {
	courseService service.CourseService
	logger        *zap.Logger
}

func NewCourseHandler(courseService service.CourseService, logger *zap.Logger) *CourseHandler {
	return &CourseHandler{courseService: courseService, logger: logger}
}

type SubmitCourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// CourseResponse is the DTO for a submitted course.
type CourseResponse struct {
	ID          string              `json:"id"`
	TherapistID string              `json:"therapistId"`
	PatientID   string              `json:"patientId"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Days        []CourseDayResponse `json:"days"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type CourseDayResponse struct {
	DayNumber   int                      `json:"dayNumber"`
	Description string                   `json:"description,omitempty"`
	Exercises   []CourseExerciseResponse `json:"exercises"`
}

type CourseExerciseResponse struct {
	ExerciseID        string `json:"exerciseId"`
	OrderInDay        int    `json:"orderInDay"`
	CustomRepetitions *int   `json:"customRepetitions,omitempty"`
	CustomSets        *int   `json:"customSets,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// MapCourseToResponse converts a domain.Course to CourseResponse DTO.
func MapCourseToResponse(course *domain.Course) CourseResponse {
	resp := CourseResponse{
		ID:          course.ID.Hex(),
		TherapistID: course.TherapistID.Hex(),
		PatientID:   course.PatientID.Hex(),
		Title:       course.Title,
		Description: course.Description,
		Days:        make([]CourseDayResponse, len(course.Days)),
		CreatedAt:   course.CreatedAt,
	}
	for i, d := range course.Days {
		day := CourseDayResponse{
			DayNumber:   d.DayNumber,
			Description: d.Description,
			Exercises:   make([]CourseExerciseResponse, len(d.Exercises)),
		}
		for j, e := range d.Exercises {
			day.Exercises[j] = CourseExerciseResponse{
				ExerciseID:        e.ExerciseID.Hex(),
				OrderInDay:        e.OrderInDay,
				CustomRepetitions: e.CustomRepetitions,
				CustomSets:        e.CustomSets,
				Notes:             e.Notes,
			}
		}
		resp.Days[i] = day
	}
	return resp
}

// SubmitCourse godoc
// @Summary Turn a session's plan into a course
// @Description Persists the plan and closes the session. A failed submit leaves the session open.
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "Session ID"
// @Param request body SubmitCourseRequest true "Course title and description"
// @Success 201 {object} service.CourseRef
// @Failure 400 {object} gin.H "Missing title"
// @Failure 404 {object} gin.H "Session not found"
// @Failure 422 {object} gin.H "Every day is empty"
// @Router /therapist/arrangements/{sid}/submit [post]
func (h *CourseHandler) SubmitCourse(c *gin.Context) {
	var req SubmitCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	ref, err := h.courseService.Submit(c.Request.Context(), therapistID, c.Param("sid"), req.Title, req.Description)
	if err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

// GetCoursesForPatient godoc
// @Summary List the courses built for a patient
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param patientId path string true "Patient ID"
// @Success 200 {array} CourseResponse
// @Failure 403 {object} gin.H "Patient not managed by this therapist"
// @Router /therapist/patients/{patientId}/courses [get]
func (h *CourseHandler) GetCoursesForPatient(c *gin.Context) {
	patientID, err := primitive.ObjectIDFromHex(c.Param("patientId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid patient ID format.")
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	courses, err := h.courseService.ListForPatient(c.Request.Context(), therapistID, patientID)
	if err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	resp := make([]CourseResponse, len(courses))
	for i := range courses {
		resp[i] = MapCourseToResponse(&courses[i])
	}
	c.JSON(http.StatusOK, resp)
}

// GetCourse godoc
// @Summary Get one course
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} CourseResponse
// @Failure 403 {object} gin.H "Course belongs to another therapist"
// @Failure 404 {object} gin.H "Course not found"
// @Router /courses/{id} [get]
func (h *CourseHandler) GetCourse(c *gin.Context) {
	courseID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid course ID format.")
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	course, err := h.courseService.GetCourse(c.Request.Context(), therapistID, courseID)
	if err != nil {
		abortWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapCourseToResponse(course))
}
