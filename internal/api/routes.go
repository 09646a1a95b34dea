package api

import (
	"net/http"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth        service.AuthService
	Patients    service.PatientService
	Exercises   service.ExerciseService
	Arrangement service.ArrangementService
	Courses     service.CourseService
}

func SetupRoutes(router *gin.Engine, jwtSecret string, svc Services, logger *zap.Logger) {
	authHandler := NewAuthHandler(svc.Auth, logger)
	exerciseHandler := NewExerciseHandler(svc.Exercises, logger)
	patientHandler := NewPatientHandler(svc.Patients, logger)
	arrangementHandler := NewArrangementHandler(svc.Arrangement, logger)
	courseHandler := NewCourseHandler(svc.Courses, logger)

	authMiddleware := AuthMiddleware(jwtSecret)
	therapistOnly := RoleMiddleware(domain.RoleTherapist)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", authHandler.Me)

		// --- Exercise catalog ---
		exerciseGroup := protected.Group("/exercises")
		{
			exerciseGroup.GET("", exerciseHandler.SearchExercises)
			exerciseGroup.GET("/:id", exerciseHandler.GetExercise)
			exerciseGroup.POST("", therapistOnly, exerciseHandler.CreateExercise)
			exerciseGroup.POST("/:id/image-upload-url", therapistOnly, exerciseHandler.RequestImageUploadURL)
			exerciseGroup.PUT("/:id/image", therapistOnly, exerciseHandler.ConfirmImageUpload)
			exerciseGroup.DELETE("/:id", therapistOnly, exerciseHandler.DeleteExercise)
		}

		protected.GET("/courses/:id", therapistOnly, courseHandler.GetCourse)

		// --- Therapist routes ---
		therapistGroup := protected.Group("/therapist")
		therapistGroup.Use(therapistOnly)
		{
			therapistGroup.POST("/patients", patientHandler.AddPatientByEmail)
			therapistGroup.GET("/patients", patientHandler.GetManagedPatients)
			therapistGroup.GET("/patients/:patientId/courses", courseHandler.GetCoursesForPatient)

			// --- Arrangement sessions ---
			therapistGroup.POST("/arrangements", arrangementHandler.OpenSession)
			session := therapistGroup.Group("/arrangements/:sid")
			{
				session.GET("", arrangementHandler.GetSession)
				session.DELETE("", arrangementHandler.DiscardSession)

				session.POST("/days", arrangementHandler.AddDay)
				session.PATCH("/days/:day", arrangementHandler.UpdateDay)
				session.DELETE("/days/:day", arrangementHandler.DeleteDay)
				session.POST("/days/:day/duplicate", arrangementHandler.DuplicateDay)

				session.POST("/days/:day/exercises", arrangementHandler.AddExercise)
				session.PUT("/days/:day/order", arrangementHandler.ReorderExercises)
				session.PATCH("/days/:day/exercises/:pid", arrangementHandler.UpdatePlacement)
				session.DELETE("/days/:day/exercises/:pid", arrangementHandler.RemoveExercise)
				session.POST("/moves", arrangementHandler.MoveExercise)

				session.PUT("/drag", arrangementHandler.BeginDrag)
				session.DELETE("/drag", arrangementHandler.EndDrag)
				session.GET("/library", arrangementHandler.BrowseLibrary)

				session.POST("/submit", courseHandler.SubmitCourse)
			}
		}
	}
}
