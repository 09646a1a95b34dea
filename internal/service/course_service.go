package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rehabclinic/course-builder/internal/arrangement"
	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrCourseAccessDenied   = errors.New("access denied to this course")
	ErrCourseTitleRequired  = errors.New("course title is required")
	ErrEmptyCourse          = errors.New("course has no exercises on any day")
	ErrInvalidSubmittedPlan = errors.New("submitted plan references an invalid id")
)

// CourseRef identifies a newly created course.
type CourseRef struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// CourseService turns arrangement sessions into persisted courses.
type CourseService interface {
	Submit(ctx context.Context, therapistID primitive.ObjectID, sessionID, title, description string) (*CourseRef, error)
	ListForPatient(ctx context.Context, therapistID, patientID primitive.ObjectID) ([]domain.Course, error)
	GetCourse(ctx context.Context, therapistID, courseID primitive.ObjectID) (*domain.Course, error)
}

type courseService struct {
	courseRepo   repository.CourseRepository
	patients     PatientService
	arrangements ArrangementService
	logger       *zap.Logger
}

// NewCourseService creates a new instance of courseService.
func NewCourseService(courseRepo repository.CourseRepository, patients PatientService, arrangements ArrangementService, logger *zap.Logger) CourseService {
	return &courseService{
		courseRepo:   courseRepo,
		patients:     patients,
		arrangements: arrangements,
		logger:       logger,
	}
}

// Submit persists the session's plan as a course and closes the session.
// The session survives a failed submit so the therapist can retry.
func (s *courseService) Submit(ctx context.Context, therapistID primitive.ObjectID, sessionID, title, description string) (*CourseRef, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrCourseTitleRequired
	}

	var ref *CourseRef
	err := s.arrangements.Commit(therapistID, sessionID, title, description, func(sub arrangement.Submission) error {
		course, err := courseFromSubmission(therapistID, sub)
		if err != nil {
			return err
		}
		if course.ExerciseCount() == 0 {
			return ErrEmptyCourse
		}
		if err := s.patients.EnsureManaged(ctx, therapistID, course.PatientID); err != nil {
			return err
		}

		// Create stamps CreatedAt and UpdatedAt on the course.
		id, err := s.courseRepo.Create(ctx, course)
		if err != nil {
			return fmt.Errorf("create course: %w", err)
		}
		ref = &CourseRef{ID: id.Hex(), CreatedAt: course.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Course submitted",
		zap.String("courseId", ref.ID),
		zap.String("sessionId", sessionID),
		zap.String("therapistId", therapistID.Hex()))
	return ref, nil
}

func courseFromSubmission(therapistID primitive.ObjectID, sub arrangement.Submission) (*domain.Course, error) {
	patientID, err := primitive.ObjectIDFromHex(sub.PatientID)
	if err != nil {
		return nil, ErrInvalidSubmittedPlan
	}
	course := &domain.Course{
		TherapistID: therapistID,
		PatientID:   patientID,
		Title:       sub.Title,
		Description: sub.Description,
		Days:        make([]domain.CourseDay, 0, len(sub.Days)),
	}
	for _, d := range sub.Days {
		day := domain.CourseDay{
			DayNumber:   d.DayNumber,
			Description: d.Description,
			Exercises:   make([]domain.CourseExercise, 0, len(d.Exercises)),
		}
		for _, e := range d.Exercises {
			exerciseID, err := primitive.ObjectIDFromHex(e.ExerciseID)
			if err != nil {
				return nil, ErrInvalidSubmittedPlan
			}
			day.Exercises = append(day.Exercises, domain.CourseExercise{
				ExerciseID:        exerciseID,
				OrderInDay:        e.OrderInDay,
				CustomRepetitions: e.CustomRepetitions,
				CustomSets:        e.CustomSets,
				Notes:             e.Notes,
			})
		}
		course.Days = append(course.Days, day)
	}
	return course, nil
}

// ListForPatient returns the therapist's courses for one patient, newest first.
func (s *courseService) ListForPatient(ctx context.Context, therapistID, patientID primitive.ObjectID) ([]domain.Course, error) {
	if err := s.patients.EnsureManaged(ctx, therapistID, patientID); err != nil {
		return nil, err
	}
	return s.courseRepo.GetByPatientAndTherapistID(ctx, patientID, therapistID)
}

func (s *courseService) GetCourse(ctx context.Context, therapistID, courseID primitive.ObjectID) (*domain.Course, error) {
	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	if course.TherapistID != therapistID {
		return nil, ErrCourseAccessDenied
	}
	return course, nil
}
