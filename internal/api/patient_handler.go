package api

import (
	"errors"
	"net/http"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PatientHandler struct {
	patientService service.PatientService
	logger         *zap.Logger
}

func NewPatientHandler(patientService service.PatientService, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{patientService: patientService, logger: logger}
}

type AddPatientRequest struct {
	PatientEmail string `json:"patientEmail" binding:"required,email"`
}

// AddPatientByEmail godoc
// @Summary Add a patient to the therapist's caseload by email
// @Description Associates an existing patient user with the authenticated therapist.
// @Tags Therapist
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AddPatientRequest true "Patient's email"
// @Success 200 {object} UserResponse "Patient successfully added"
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 403 {object} gin.H "User is not a patient"
// @Failure 404 {object} gin.H "Patient not found"
// @Failure 409 {object} gin.H "Patient already has a therapist"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /therapist/patients [post]
func (h *PatientHandler) AddPatientByEmail(c *gin.Context) {
	var req AddPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	patient, err := h.patientService.AddPatientByEmail(c.Request.Context(), therapistID, req.PatientEmail)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPatientNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrPatientNotRole):
			abortWithError(c, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrPatientAlreadyAssigned):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			h.logger.Error("Adding patient failed", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to add patient.")
		}
		return
	}

	c.JSON(http.StatusOK, MapUserToResponse(patient))
}

// GetManagedPatients godoc
// @Summary Get the therapist's patients
// @Tags Therapist
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse "List of managed patients"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /therapist/patients [get]
func (h *PatientHandler) GetManagedPatients(c *gin.Context) {
	therapistID, ok := userObjectID(c)
	if !ok {
		return
	}

	patients, err := h.patientService.GetManagedPatients(c.Request.Context(), therapistID)
	if err != nil {
		h.logger.Error("Listing patients failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to retrieve managed patients.")
		return
	}

	c.JSON(http.StatusOK, MapUsersToResponse(patients))
}

// MapUsersToResponse converts a slice of domain.User to UserResponse DTOs.
func MapUsersToResponse(users []domain.User) []UserResponse {
	userResponses := make([]UserResponse, len(users))
	for i := range users {
		userResponses[i] = MapUserToResponse(&users[i])
	}
	return userResponses
}
