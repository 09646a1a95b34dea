package service

import (
	"context"
	"errors"
	"time"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrPatientNotFound        = errors.New("patient user not found")
	ErrPatientNotRole         = errors.New("user found but is not a patient")
	ErrPatientAlreadyAssigned = errors.New("patient is already assigned to another therapist")
	ErrPatientNotManaged      = errors.New("patient is not managed by this therapist")
)

type PatientService interface {
	AddPatientByEmail(ctx context.Context, therapistID primitive.ObjectID, patientEmail string) (*domain.User, error)
	GetManagedPatients(ctx context.Context, therapistID primitive.ObjectID) ([]domain.User, error)
	// EnsureManaged fails with ErrPatientNotManaged unless the patient belongs to the therapist.
	EnsureManaged(ctx context.Context, therapistID, patientID primitive.ObjectID) error
}

type patientService struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
}

func NewPatientService(userRepo repository.UserRepository, logger *zap.Logger) PatientService {
	return &patientService{userRepo: userRepo, logger: logger}
}

// AddPatientByEmail finds a patient by email and puts them under the therapist's care.
func (s *patientService) AddPatientByEmail(ctx context.Context, therapistID primitive.ObjectID, patientEmail string) (*domain.User, error) {
	if therapistID == primitive.NilObjectID || patientEmail == "" {
		return nil, errors.New("therapist ID and patient email are required")
	}

	patient, err := s.userRepo.GetByEmail(ctx, patientEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	if patient.Role != domain.RolePatient {
		return nil, ErrPatientNotRole
	}

	if patient.TherapistID != nil && *patient.TherapistID != primitive.NilObjectID {
		if *patient.TherapistID == therapistID {
			patient.PasswordHash = ""
			return patient, nil
		}
		return nil, ErrPatientAlreadyAssigned
	}

	if err = s.userRepo.AddPatientIDToTherapist(ctx, therapistID, patient.ID); err != nil {
		return nil, err
	}
	if err = s.userRepo.SetTherapistForPatient(ctx, patient.ID, therapistID); err != nil {
		s.undoAddPatient(ctx, therapistID, patient.ID)
		return nil, err
	}

	s.logger.Info("Patient assigned",
		zap.String("therapistId", therapistID.Hex()),
		zap.String("patientId", patient.ID.Hex()))

	patient.TherapistID = &therapistID
	patient.PasswordHash = ""
	return patient, nil
}

// undoAddPatient takes the patient back off the therapist's list after the
// assignment failed half way. It runs even if ctx is already cancelled.
func (s *patientService) undoAddPatient(ctx context.Context, therapistID, patientID primitive.ObjectID) {
	undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.userRepo.RemovePatientIDFromTherapist(undoCtx, therapistID, patientID); err != nil {
		s.logger.Error("Therapist lists a patient assigned elsewhere",
			zap.String("therapistId", therapistID.Hex()),
			zap.String("patientId", patientID.Hex()),
			zap.Error(err))
	}
}

// GetManagedPatients retrieves the patients of a therapist.
func (s *patientService) GetManagedPatients(ctx context.Context, therapistID primitive.ObjectID) ([]domain.User, error) {
	if therapistID == primitive.NilObjectID {
		return nil, errors.New("therapist ID is required")
	}
	patients, err := s.userRepo.GetPatientsByTherapistID(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	for i := range patients {
		patients[i].PasswordHash = ""
	}
	return patients, nil
}

func (s *patientService) EnsureManaged(ctx context.Context, therapistID, patientID primitive.ObjectID) error {
	patient, err := s.userRepo.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPatientNotFound
		}
		return err
	}
	if !patient.IsPatient() {
		return ErrPatientNotRole
	}
	if patient.TherapistID == nil || *patient.TherapistID != therapistID {
		return ErrPatientNotManaged
	}
	return nil
}
