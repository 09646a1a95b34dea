// internal/domain/course.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Course is a submitted multi-day exercise plan for one patient.
type Course struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TherapistID primitive.ObjectID `bson:"therapistId" json:"therapistId"` // Who built the course
	PatientID   primitive.ObjectID `bson:"patientId" json:"patientId"`     // Who the course is for
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Days        []CourseDay        `bson:"days" json:"days"` // Ascending by DayNumber
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CourseDay is one day of a course.
type CourseDay struct {
	DayNumber   int              `bson:"dayNumber" json:"dayNumber"`
	Description string           `bson:"description,omitempty" json:"description,omitempty"`
	Exercises   []CourseExercise `bson:"exercises" json:"exercises"` // Ascending by OrderInDay
}

// CourseExercise schedules one catalog exercise within a course day.
type CourseExercise struct {
	ExerciseID        primitive.ObjectID `bson:"exerciseId" json:"exerciseId"`
	OrderInDay        int                `bson:"orderInDay" json:"orderInDay"`
	CustomRepetitions *int               `bson:"customRepetitions,omitempty" json:"customRepetitions,omitempty"`
	CustomSets        *int               `bson:"customSets,omitempty" json:"customSets,omitempty"`
	Notes             string             `bson:"notes,omitempty" json:"notes,omitempty"`
}

// ExerciseCount counts scheduled exercises across all days.
func (c *Course) ExerciseCount() int {
	n := 0
	for _, d := range c.Days {
		n += len(d.Exercises)
	}
	return n
}
