package repository

import (
	"context"

	"rehabclinic/course-builder/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate key")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	AddPatientIDToTherapist(ctx context.Context, therapistID, patientID primitive.ObjectID) error
	RemovePatientIDFromTherapist(ctx context.Context, therapistID, patientID primitive.ObjectID) error
	GetPatientsByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.User, error)
	SetTherapistForPatient(ctx context.Context, patientID, therapistID primitive.ObjectID) error
}

// ExerciseRepository defines the interface for the exercise catalog.
type ExerciseRepository interface {
	Create(ctx context.Context, exercise *domain.Exercise) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Exercise, error)
	// Search returns one page of matching exercises and the total match count.
	Search(ctx context.Context, filter domain.ExerciseFilter) ([]domain.Exercise, int64, error)
	SetImageKey(ctx context.Context, id primitive.ObjectID, imageKey string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// CourseRepository stores submitted courses.
type CourseRepository interface {
	Create(ctx context.Context, course *domain.Course) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Course, error)
	GetByPatientAndTherapistID(ctx context.Context, patientID, therapistID primitive.ObjectID) ([]domain.Course, error)
}
