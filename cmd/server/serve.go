package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rehabclinic/course-builder/internal/api"
	"rehabclinic/course-builder/internal/repository/mongo"
	"rehabclinic/course-builder/internal/service"
	"rehabclinic/course-builder/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting course builder server")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		logger.Info("Disconnecting MongoDB")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			logger.Error("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)

	// Index creation does not block startup.
	go func() {
		idxCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(idxCtx, appDB, logger); err != nil {
			logger.Error("Index creation incomplete", zap.Error(err))
			return
		}
		logger.Info("Database indexes ensured")
	}()

	// --- Storage ---
	fileStorage, err := storage.NewS3Storage(ctx, cfg.S3, logger)
	if err != nil {
		return fmt.Errorf("initialize S3 storage: %w", err)
	}

	// --- Repositories ---
	userRepo := mongo.NewMongoUserRepository(appDB)
	exerciseRepo := mongo.NewMongoExerciseRepository(appDB)
	courseRepo := mongo.NewMongoCourseRepository(appDB)

	// --- Services ---
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, logger)
	patientService := service.NewPatientService(userRepo, logger)
	exerciseService := service.NewExerciseService(exerciseRepo, fileStorage, service.CatalogLimits{
		DefaultPageSize: cfg.Catalog.DefaultPageSize,
		MaxPageSize:     cfg.Catalog.MaxPageSize,
		ImageURLExpiry:  cfg.Catalog.ImageURLExpiry,
	}, logger)
	arrangementService := service.NewArrangementService(patientService, exerciseService, service.SessionSettings{
		DefaultDays:   cfg.Arrangement.DefaultDays,
		SessionTTL:    cfg.Arrangement.SessionTTL,
		SweepInterval: cfg.Arrangement.SweepInterval,
		FetchTimeout:  cfg.Arrangement.FetchTimeout,
	}, logger)
	courseService := service.NewCourseService(courseRepo, patientService, arrangementService, logger)

	go arrangementService.Run(ctx)

	// --- HTTP ---
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger))
	api.SetupRoutes(router, cfg.JWT.Secret, api.Services{
		Auth:        authService,
		Patients:    patientService,
		Exercises:   exerciseService,
		Arrangement: arrangementService,
		Courses:     courseService,
	}, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting")
	return nil
}
