package service

import (
	"context"
	"errors"
	"testing"

	"rehabclinic/course-builder/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestPatientService_AddPatientByEmail(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	therapist := users.seed("Tess", domain.RoleTherapist, nil)
	other := users.seed("Otto", domain.RoleTherapist, nil)
	users.seed("Paula", domain.RolePatient, nil)
	users.seed("Theo", domain.RoleTherapist, nil)
	svc := NewPatientService(users, zap.NewNop())

	patient, err := svc.AddPatientByEmail(ctx, therapist, "paula@clinic.test")
	require.NoError(t, err)
	require.NotNil(t, patient.TherapistID)
	assert.Equal(t, therapist, *patient.TherapistID)
	require.NoError(t, svc.EnsureManaged(ctx, therapist, patient.ID))

	// Adding again is idempotent for the same therapist.
	_, err = svc.AddPatientByEmail(ctx, therapist, "paula@clinic.test")
	assert.NoError(t, err)

	_, err = svc.AddPatientByEmail(ctx, other, "paula@clinic.test")
	assert.ErrorIs(t, err, ErrPatientAlreadyAssigned)

	_, err = svc.AddPatientByEmail(ctx, therapist, "theo@clinic.test")
	assert.ErrorIs(t, err, ErrPatientNotRole)

	_, err = svc.AddPatientByEmail(ctx, therapist, "ghost@clinic.test")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	patients, err := svc.GetManagedPatients(ctx, therapist)
	require.NoError(t, err)
	assert.Len(t, patients, 1)
}

func TestPatientService_AddPatientByEmailUndoesHalfAssignment(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	therapist := users.seed("Tess", domain.RoleTherapist, nil)
	patientID := users.seed("Paula", domain.RolePatient, nil)
	users.setTherapistErr = errors.New("write conflict")
	svc := NewPatientService(users, zap.NewNop())

	_, err := svc.AddPatientByEmail(ctx, therapist, "paula@clinic.test")
	assert.ErrorIs(t, err, users.setTherapistErr)

	tess, err := users.GetByID(ctx, therapist)
	require.NoError(t, err)
	assert.Empty(t, tess.PatientIDs)
	paula, err := users.GetByID(ctx, patientID)
	require.NoError(t, err)
	assert.Nil(t, paula.TherapistID)

	// The retry succeeds once the store recovers.
	users.setTherapistErr = nil
	_, err = svc.AddPatientByEmail(ctx, therapist, "paula@clinic.test")
	require.NoError(t, err)
	tess, err = users.GetByID(ctx, therapist)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{patientID}, tess.PatientIDs)
}

func TestPatientService_EnsureManaged(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	therapist := users.seed("Tess", domain.RoleTherapist, nil)
	other := users.seed("Otto", domain.RoleTherapist, nil)
	mine := users.seed("Paula", domain.RolePatient, &therapist)
	svc := NewPatientService(users, zap.NewNop())

	assert.NoError(t, svc.EnsureManaged(ctx, therapist, mine))
	assert.ErrorIs(t, svc.EnsureManaged(ctx, other, mine), ErrPatientNotManaged)
	assert.ErrorIs(t, svc.EnsureManaged(ctx, therapist, other), ErrPatientNotRole)
	assert.ErrorIs(t, svc.EnsureManaged(ctx, therapist, primitive.NewObjectID()), ErrPatientNotFound)
}
