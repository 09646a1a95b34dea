package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AuthHandler holds the authentication service dependency.
type AuthHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// --- Request/Response Structs ---

type RegisterRequest struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=8"`
	Role     domain.Role `json:"role" binding:"required,oneof=therapist patient"`
}

// UserResponse excludes sensitive info like password hash
type UserResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	CreatedAt   time.Time   `json:"createdAt"`
	PatientIDs  []string    `json:"patientIds,omitempty"`
	TherapistID *string     `json:"therapistId,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// --- Handler Methods ---

// Register godoc
// @Summary Register a new user (Therapist or Patient)
// @Description Creates a new user account.
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "Registration details"
// @Success 201 {object} UserResponse "User created successfully"
// @Failure 400 {object} gin.H "Invalid input (validation error)"
// @Failure 409 {object} gin.H "Conflict (email already exists)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserAlreadyExists):
			abortWithError(c, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidRole):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("Registration failed", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Could not process registration")
		}
		return
	}

	c.JSON(http.StatusCreated, MapUserToResponse(user))
}

// Login godoc
// @Summary Log in a user
// @Description Authenticates a user and returns a JWT token.
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} gin.H "Invalid input (validation error)"
// @Failure 401 {object} gin.H "Unauthorized (invalid credentials)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrAuthenticationFailed) {
			abortWithError(c, http.StatusUnauthorized, err.Error())
		} else {
			h.logger.Error("Login failed", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Could not process login")
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token: token,
		User:  MapUserToResponse(user),
	})
}

// Me returns the identity carried by the caller's token.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	role, _ := getUserRoleFromContext(c)
	c.JSON(http.StatusOK, gin.H{"userId": userID, "role": role})
}

// MapUserToResponse converts a domain User to a UserResponse DTO.
// Crucially excludes PasswordHash and converts ObjectIDs to strings.
func MapUserToResponse(user *domain.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}

	resp := UserResponse{
		ID:        user.ID.Hex(),
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}

	if len(user.PatientIDs) > 0 {
		resp.PatientIDs = make([]string, len(user.PatientIDs))
		for i, id := range user.PatientIDs {
			resp.PatientIDs[i] = id.Hex()
		}
	}

	if user.TherapistID != nil && *user.TherapistID != primitive.NilObjectID {
		therapistIDHex := user.TherapistID.Hex()
		resp.TherapistID = &therapistIDHex
	}

	return resp
}
