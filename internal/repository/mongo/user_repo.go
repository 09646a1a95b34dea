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

const userCollectionName = "users"

// mongoUserRepository implements the repository.UserRepository interface using MongoDB.
type mongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new instance of mongoUserRepository.
func NewMongoUserRepository(db *mongo.Database) repository.UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(userCollectionName),
	}
}

// Create inserts a new user into the database.
func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.PasswordHash == "" || user.Role == "" {
		return primitive.NilObjectID, errors.New("user email, password hash, and role are required")
	}

	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByEmail retrieves a user by their email address.
func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// GetByID retrieves a user by their MongoDB ObjectID.
func (r *mongoUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// AddPatientIDToTherapist adds a patient's ID to a therapist's PatientIDs array.
func (r *mongoUserRepository) AddPatientIDToTherapist(ctx context.Context, therapistID, patientID primitive.ObjectID) error {
	filter := bson.M{"_id": therapistID, "role": domain.RoleTherapist}
	update := bson.M{
		"$addToSet": bson.M{"patientIds": patientID}, // $addToSet prevents duplicates
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	// ModifiedCount is 0 when the patient was already listed, which is fine.
	return nil
}

// RemovePatientIDFromTherapist takes a patient's ID out of a therapist's PatientIDs array.
func (r *mongoUserRepository) RemovePatientIDFromTherapist(ctx context.Context, therapistID, patientID primitive.ObjectID) error {
	filter := bson.M{"_id": therapistID, "role": domain.RoleTherapist}
	update := bson.M{
		"$pull": bson.M{"patientIds": patientID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetPatientsByTherapistID retrieves all patients associated with a therapist.
func (r *mongoUserRepository) GetPatientsByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.User, error) {
	therapist, err := r.GetByID(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	if !therapist.IsTherapist() {
		return nil, errors.New("user is not a therapist")
	}
	if len(therapist.PatientIDs) == 0 {
		return []domain.User{}, nil
	}

	var patients []domain.User
	filter := bson.M{"_id": bson.M{"$in": therapist.PatientIDs}}
	findOptions := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &patients); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return patients, nil
}

// SetTherapistForPatient sets the TherapistID field for a patient.
func (r *mongoUserRepository) SetTherapistForPatient(ctx context.Context, patientID, therapistID primitive.ObjectID) error {
	filter := bson.M{"_id": patientID, "role": domain.RolePatient}
	update := bson.M{
		"$set": bson.M{
			"therapistId": therapistID,
			"updatedAt":   time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureUserIndexes creates necessary indexes for the users collection.
func EnsureUserIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "therapistId", Value: 1}},
			Options: options.Index().SetSparse(true), // Therapists have no therapistId
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
