package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	exerciseCollectionName = "exercises"
	defaultPageSize        = 20
)

// mongoExerciseRepository implements repository.ExerciseRepository
type mongoExerciseRepository struct {
	collection *mongo.Collection
}

// NewMongoExerciseRepository creates a new Exercise repository backed by MongoDB.
func NewMongoExerciseRepository(db *mongo.Database) repository.ExerciseRepository {
	return &mongoExerciseRepository{
		collection: db.Collection(exerciseCollectionName),
	}
}

// Create inserts a new exercise into the catalog.
func (r *mongoExerciseRepository) Create(ctx context.Context, exercise *domain.Exercise) (primitive.ObjectID, error) {
	if exercise.Name == "" || exercise.CreatedBy == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("exercise name and creator are required")
	}

	exercise.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	exercise.CreatedAt = now
	exercise.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, exercise)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves an exercise by its ID.
func (r *mongoExerciseRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Exercise, error) {
	var exercise domain.Exercise
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&exercise)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &exercise, nil
}

// searchFilter builds the catalog query. Free text matches name or
// description case-insensitively; category and muscle group match exactly.
func searchFilter(f domain.ExerciseFilter) bson.M {
	filter := bson.M{}
	if f.Text != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Text), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"description": rx},
		}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.MuscleGroup != "" {
		filter["muscleGroup"] = f.MuscleGroup
	}
	return filter
}

// Search returns one page of the catalog sorted by name, plus the number of
// exercises matching the filter overall.
func (r *mongoExerciseRepository) Search(ctx context.Context, f domain.ExerciseFilter) ([]domain.Exercise, int64, error) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	filter := searchFilter(f)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	skip, ok := pageSkip(page, size, total)
	if !ok {
		return []domain.Exercise{}, total, nil
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	exercises := []domain.Exercise{}
	if err = cursor.All(ctx, &exercises); err != nil {
		return nil, 0, err
	}
	if err = cursor.Err(); err != nil {
		return nil, 0, err
	}
	return exercises, total, nil
}

// SetImageKey records the object key of the exercise's image.
func (r *mongoExerciseRepository) SetImageKey(ctx context.Context, id primitive.ObjectID, imageKey string) error {
	update := bson.M{
		"$set": bson.M{
			"imageKey":  imageKey,
			"updatedAt": time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an exercise from the catalog.
func (r *mongoExerciseRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// pageSkip returns how many documents precede the page, or false when the
// page starts past the last of total documents.
func pageSkip(page, size int, total int64) (int64, bool) {
	if page <= 1 {
		return 0, true
	}
	if int64(page-1) > total/int64(size) {
		return 0, false
	}
	skip := int64(page-1) * int64(size)
	if skip >= total {
		return 0, false
	}
	return skip, true
}

// EnsureExerciseIndexes creates necessary indexes for the exercises collection.
func EnsureExerciseIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index(),
		},
		{
			// Library filters
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "muscleGroup", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("exercise_library_filter"),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
