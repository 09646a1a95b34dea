package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"rehabclinic/course-builder/internal/catalog"
	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/repository"
	"rehabclinic/course-builder/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// --- Error Definitions ---
var (
	ErrExerciseNotFound     = errors.New("exercise not found")
	ErrExerciseAccessDenied = errors.New("access denied to modify or delete this exercise")
	ErrValidationFailed     = errors.New("exercise validation failed")
	ErrInvalidContentType   = errors.New("invalid or missing image content type")
	ErrUploadURLError       = errors.New("failed to generate upload URL")
	ErrInvalidImageKey      = errors.New("object key is not an image upload for this exercise")
	ErrImageNotUploaded     = errors.New("no image has been uploaded under this key")
)

// ExerciseInput is the editable part of a catalog exercise.
type ExerciseInput struct {
	Name            string
	Description     string
	Category        string
	MuscleGroup     string
	DurationMinutes int
	VideoURL        string
}

// UploadURLResponse carries a presigned upload URL and the key it writes to.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
}

// ExerciseService manages the exercise catalog. It also serves as the
// catalog.Searcher behind the library panel of arrangement sessions.
type ExerciseService interface {
	catalog.Searcher
	CreateExercise(ctx context.Context, therapistID primitive.ObjectID, in ExerciseInput) (*domain.Exercise, error)
	GetExerciseByID(ctx context.Context, exerciseID primitive.ObjectID) (*domain.Exercise, error)
	// Hit returns the library view of a single exercise.
	Hit(ctx context.Context, exerciseID string) (catalog.Hit, error)
	RequestImageUploadURL(ctx context.Context, therapistID, exerciseID primitive.ObjectID, contentType string) (*UploadURLResponse, error)
	ConfirmImageUpload(ctx context.Context, therapistID, exerciseID primitive.ObjectID, objectKey string) (*domain.Exercise, error)
	DeleteExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID) error
}

// MaxCatalogPage is the deepest catalog page a search may ask for.
const MaxCatalogPage = 10000

// CatalogLimits bounds catalog paging and image link lifetime.
type CatalogLimits struct {
	DefaultPageSize int
	MaxPageSize     int
	ImageURLExpiry  time.Duration
}

type exerciseService struct {
	exerciseRepo repository.ExerciseRepository
	fileStorage  storage.FileStorage
	limits       CatalogLimits
	logger       *zap.Logger
}

// NewExerciseService creates a new instance of exerciseService.
func NewExerciseService(exerciseRepo repository.ExerciseRepository, fileStorage storage.FileStorage, limits CatalogLimits, logger *zap.Logger) ExerciseService {
	if limits.DefaultPageSize < 1 {
		limits.DefaultPageSize = 20
	}
	if limits.MaxPageSize < limits.DefaultPageSize {
		limits.MaxPageSize = limits.DefaultPageSize
	}
	return &exerciseService{
		exerciseRepo: exerciseRepo,
		fileStorage:  fileStorage,
		limits:       limits,
		logger:       logger,
	}
}

// CreateExercise adds an exercise to the catalog.
func (s *exerciseService) CreateExercise(ctx context.Context, therapistID primitive.ObjectID, in ExerciseInput) (*domain.Exercise, error) {
	if strings.TrimSpace(in.Name) == "" || in.DurationMinutes < 0 {
		return nil, ErrValidationFailed
	}
	if therapistID == primitive.NilObjectID {
		return nil, errors.New("therapist ID is required to create an exercise")
	}

	exercise := &domain.Exercise{
		CreatedBy:       therapistID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Category:        in.Category,
		MuscleGroup:     in.MuscleGroup,
		DurationMinutes: in.DurationMinutes,
		VideoURL:        in.VideoURL,
	}

	exerciseID, err := s.exerciseRepo.Create(ctx, exercise)
	if err != nil {
		return nil, err
	}
	exercise.ID = exerciseID
	return exercise, nil
}

// GetExerciseByID retrieves a single exercise.
func (s *exerciseService) GetExerciseByID(ctx context.Context, exerciseID primitive.ObjectID) (*domain.Exercise, error) {
	exercise, err := s.exerciseRepo.GetByID(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}
	return exercise, nil
}

// Search returns one page of the catalog as library hits. Image links are
// signed concurrently; an image that cannot be signed is left blank rather
// than failing the page.
func (s *exerciseService) Search(ctx context.Context, q catalog.Query) (catalog.Page, error) {
	page := q.Page
	switch {
	case page < 1:
		page = 1
	case page > MaxCatalogPage:
		page = MaxCatalogPage
	}
	size := q.PageSize
	switch {
	case size < 1:
		size = s.limits.DefaultPageSize
	case size > s.limits.MaxPageSize:
		size = s.limits.MaxPageSize
	}

	exercises, total, err := s.exerciseRepo.Search(ctx, domain.ExerciseFilter{
		Text:        strings.TrimSpace(q.Text),
		Category:    q.Category,
		MuscleGroup: q.MuscleGroup,
		Page:        page,
		PageSize:    size,
	})
	if err != nil {
		return catalog.Page{}, fmt.Errorf("search exercises: %w", err)
	}

	hits := make([]catalog.Hit, len(exercises))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range exercises {
		hits[i] = toHit(&exercises[i])
		if exercises[i].ImageKey == "" {
			continue
		}
		i := i
		g.Go(func() error {
			hits[i].ImageURL = s.imageURL(gctx, exercises[i].ImageKey)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return catalog.Page{}, err
	}

	return catalog.Page{Items: hits, Page: page, PageSize: size, Total: total}, nil
}

// Hit returns the library view of one exercise.
func (s *exerciseService) Hit(ctx context.Context, exerciseID string) (catalog.Hit, error) {
	id, err := primitive.ObjectIDFromHex(exerciseID)
	if err != nil {
		return catalog.Hit{}, ErrExerciseNotFound
	}
	exercise, err := s.GetExerciseByID(ctx, id)
	if err != nil {
		return catalog.Hit{}, err
	}
	hit := toHit(exercise)
	if exercise.ImageKey != "" {
		hit.ImageURL = s.imageURL(ctx, exercise.ImageKey)
	}
	return hit, nil
}

func (s *exerciseService) imageURL(ctx context.Context, key string) string {
	url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, key, s.limits.ImageURLExpiry)
	if err != nil {
		s.logger.Warn("Could not sign exercise image", zap.String("key", key), zap.Error(err))
		return ""
	}
	return url
}

func toHit(ex *domain.Exercise) catalog.Hit {
	return catalog.Hit{
		ExerciseID:      ex.ID.Hex(),
		Title:           ex.Name,
		Description:     ex.Description,
		DurationMinutes: ex.DurationMinutes,
		Category:        ex.Category,
	}
}

// RequestImageUploadURL issues a presigned PUT for a new exercise image.
// The exercise keeps its current image until ConfirmImageUpload.
func (s *exerciseService) RequestImageUploadURL(ctx context.Context, therapistID, exerciseID primitive.ObjectID, contentType string) (*UploadURLResponse, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, ErrInvalidContentType
	}

	exercise, err := s.GetExerciseByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if exercise.CreatedBy != therapistID {
		return nil, ErrExerciseAccessDenied
	}

	ext := strings.TrimPrefix(strings.ToLower(contentType), "image/")
	objectKey := path.Join("exercises", exerciseID.Hex(), fmt.Sprintf("%s.%s", uuid.NewString(), ext))

	uploadURL, err := s.fileStorage.GeneratePresignedUploadURL(ctx, objectKey, contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, ErrUploadURLError
	}
	return &UploadURLResponse{UploadURL: uploadURL, ObjectKey: objectKey}, nil
}

// ConfirmImageUpload switches the exercise to an uploaded image and removes
// the one it replaces.
func (s *exerciseService) ConfirmImageUpload(ctx context.Context, therapistID, exerciseID primitive.ObjectID, objectKey string) (*domain.Exercise, error) {
	exercise, err := s.GetExerciseByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if exercise.CreatedBy != therapistID {
		return nil, ErrExerciseAccessDenied
	}

	prefix := path.Join("exercises", exerciseID.Hex()) + "/"
	if !strings.HasPrefix(objectKey, prefix) || len(objectKey) == len(prefix) || path.Clean(objectKey) != objectKey {
		return nil, ErrInvalidImageKey
	}
	if objectKey == exercise.ImageKey {
		return exercise, nil
	}

	exists, err := s.fileStorage.ObjectExists(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("check uploaded image: %w", err)
	}
	if !exists {
		return nil, ErrImageNotUploaded
	}
	if err = s.exerciseRepo.SetImageKey(ctx, exerciseID, objectKey); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	if exercise.ImageKey != "" {
		s.deleteImage(ctx, exercise.ImageKey)
	}
	exercise.ImageKey = objectKey
	s.logger.Info("Exercise image replaced", zap.String("exerciseId", exerciseID.Hex()), zap.String("key", objectKey))
	return exercise, nil
}

// DeleteExercise removes an exercise created by the therapist, and its image.
// Courses already submitted keep their reference.
func (s *exerciseService) DeleteExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID) error {
	exercise, err := s.GetExerciseByID(ctx, exerciseID)
	if err != nil {
		return err
	}
	if exercise.CreatedBy != therapistID {
		return ErrExerciseAccessDenied
	}

	if err = s.exerciseRepo.Delete(ctx, exerciseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExerciseNotFound
		}
		return err
	}
	if exercise.ImageKey != "" {
		s.deleteImage(ctx, exercise.ImageKey)
	}
	return nil
}

// deleteImage removes an image object. Failures leave an orphan in the
// bucket and are only logged.
func (s *exerciseService) deleteImage(ctx context.Context, key string) {
	if err := s.fileStorage.DeleteObject(ctx, key); err != nil {
		s.logger.Warn("Orphaned exercise image", zap.String("key", key), zap.Error(err))
	}
}
