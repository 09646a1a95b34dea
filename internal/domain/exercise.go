// internal/domain/exercise.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Exercise is one entry of the clinic's exercise catalog.
type Exercise struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedBy   primitive.ObjectID `bson:"createdBy" json:"createdBy"` // Therapist who added it
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`

	Category        string `bson:"category,omitempty" json:"category,omitempty"`       // e.g. "Mobility", "Strength", "Balance"
	MuscleGroup     string `bson:"muscleGroup,omitempty" json:"muscleGroup,omitempty"` // e.g. "Knee", "Shoulder"
	DurationMinutes int    `bson:"durationMinutes,omitempty" json:"durationMinutes,omitempty"`
	ImageKey        string `bson:"imageKey,omitempty" json:"-"` // Object key in the image bucket
	VideoURL        string `bson:"videoUrl,omitempty" json:"videoUrl,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ExerciseFilter narrows a catalog search. Page is 1-based.
type ExerciseFilter struct {
	Text        string
	Category    string
	MuscleGroup string
	Page        int
	PageSize    int
}
