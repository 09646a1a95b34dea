package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

// User represents a clinic user, either a Therapist or a Patient.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never exposed via JSON
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`

	// --- Therapist-specific ---
	PatientIDs []primitive.ObjectID `bson:"patientIds,omitempty" json:"patientIds,omitempty"`

	// --- Patient-specific ---
	TherapistID *primitive.ObjectID `bson:"therapistId,omitempty" json:"therapistId,omitempty"`
}

func (u *User) IsTherapist() bool {
	return u.Role == RoleTherapist
}

func (u *User) IsPatient() bool {
	return u.Role == RolePatient
}

// ManagesPatient reports whether patientID is on the therapist's list.
func (u *User) ManagesPatient(patientID primitive.ObjectID) bool {
	for _, id := range u.PatientIDs {
		if id == patientID {
			return true
		}
	}
	return false
}
