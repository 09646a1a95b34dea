// internal/repository/mongo/course_repo.go
package mongo

import (
	"context"
	"errors"
	"time"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const courseCollectionName = "courses"

// mongoCourseRepository implements repository.CourseRepository
type mongoCourseRepository struct {
	collection *mongo.Collection
}

// NewMongoCourseRepository creates a new Course repository.
func NewMongoCourseRepository(db *mongo.Database) repository.CourseRepository {
	return &mongoCourseRepository{
		collection: db.Collection(courseCollectionName),
	}
}

// Create inserts a submitted course, days and exercises embedded. It sets
// the course's ID, CreatedAt and UpdatedAt.
func (r *mongoCourseRepository) Create(ctx context.Context, course *domain.Course) (primitive.ObjectID, error) {
	if course.PatientID == primitive.NilObjectID || course.TherapistID == primitive.NilObjectID || course.Title == "" {
		return primitive.NilObjectID, errors.New("course requires patientId, therapistId, and title")
	}
	course.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, course)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted course ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single course by its ID.
func (r *mongoCourseRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Course, error) {
	var course domain.Course
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&course)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &course, nil
}

// GetByPatientAndTherapistID retrieves a patient's courses built by one therapist, newest first.
func (r *mongoCourseRepository) GetByPatientAndTherapistID(ctx context.Context, patientID, therapistID primitive.ObjectID) ([]domain.Course, error) {
	filter := bson.M{
		"patientId":   patientID,
		"therapistId": therapistID,
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	courses := []domain.Course{}
	if err = cursor.All(ctx, &courses); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return courses, nil
}

// EnsureCourseIndexes creates necessary indexes for the courses collection.
func EnsureCourseIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "therapistId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "therapistId", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
