package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rehabclinic/course-builder/internal/domain"
	"rehabclinic/course-builder/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- users ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*domain.User

	// setTherapistErr fails SetTherapistForPatient.
	setTherapistErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[primitive.ObjectID]*domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	cp := *user
	cp.ID = primitive.NewObjectID()
	r.users[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) AddPatientIDToTherapist(_ context.Context, therapistID, patientID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[therapistID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PatientIDs = append(u.PatientIDs, patientID)
	return nil
}

func (r *fakeUserRepo) RemovePatientIDFromTherapist(_ context.Context, therapistID, patientID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[therapistID]
	if !ok {
		return repository.ErrNotFound
	}
	kept := u.PatientIDs[:0]
	for _, id := range u.PatientIDs {
		if id != patientID {
			kept = append(kept, id)
		}
	}
	u.PatientIDs = kept
	return nil
}

func (r *fakeUserRepo) GetPatientsByTherapistID(_ context.Context, therapistID primitive.ObjectID) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		if u.TherapistID != nil && *u.TherapistID == therapistID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) SetTherapistForPatient(_ context.Context, patientID, therapistID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setTherapistErr != nil {
		return r.setTherapistErr
	}
	u, ok := r.users[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	u.TherapistID = &therapistID
	return nil
}

// seed stores a user directly and returns its id.
func (r *fakeUserRepo) seed(name string, role domain.Role, therapistID *primitive.ObjectID) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &domain.User{
		ID:          primitive.NewObjectID(),
		Name:        name,
		Email:       strings.ToLower(name) + "@clinic.test",
		Role:        role,
		TherapistID: therapistID,
	}
	r.users[u.ID] = u
	return u.ID
}

// --- exercises ---

type fakeExerciseRepo struct {
	mu        sync.Mutex
	exercises map[primitive.ObjectID]*domain.Exercise
	searchErr error

	// stall makes Search block until its context ends.
	stall bool
}

func newFakeExerciseRepo() *fakeExerciseRepo {
	return &fakeExerciseRepo{exercises: map[primitive.ObjectID]*domain.Exercise{}}
}

func (r *fakeExerciseRepo) Create(_ context.Context, exercise *domain.Exercise) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exercise
	cp.ID = primitive.NewObjectID()
	r.exercises[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeExerciseRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Exercise, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exercises[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeExerciseRepo) Search(ctx context.Context, f domain.ExerciseFilter) ([]domain.Exercise, int64, error) {
	r.mu.Lock()
	stall := r.stall
	r.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.searchErr != nil {
		return nil, 0, r.searchErr
	}
	var all []domain.Exercise
	for _, e := range r.exercises {
		if f.Text != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Text)) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		all = append(all, *e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	start := (f.Page - 1) * f.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r *fakeExerciseRepo) SetImageKey(_ context.Context, id primitive.ObjectID, imageKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exercises[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.ImageKey = imageKey
	return nil
}

func (r *fakeExerciseRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exercises[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.exercises, id)
	return nil
}

func (r *fakeExerciseRepo) seed(createdBy primitive.ObjectID, name string, minutes int, imageKey string) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &domain.Exercise{
		ID:              primitive.NewObjectID(),
		CreatedBy:       createdBy,
		Name:            name,
		DurationMinutes: minutes,
		ImageKey:        imageKey,
	}
	r.exercises[e.ID] = e
	return e.ID
}

// --- courses ---

type fakeCourseRepo struct {
	mu      sync.Mutex
	courses map[primitive.ObjectID]*domain.Course
	err     error
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{courses: map[primitive.ObjectID]*domain.Course{}}
}

func (r *fakeCourseRepo) Create(_ context.Context, course *domain.Course) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return primitive.NilObjectID, r.err
	}
	course.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	cp := *course
	r.courses[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeCourseRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCourseRepo) GetByPatientAndTherapistID(_ context.Context, patientID, therapistID primitive.ObjectID) ([]domain.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Course{}
	for _, c := range r.courses {
		if c.PatientID == patientID && c.TherapistID == therapistID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCourseRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.courses)
}

// --- storage ---

type fakeStorage struct {
	mu       sync.Mutex
	deleted  []string
	failKey  string
	uploaded map[string]bool
}

// put simulates a client finishing a presigned upload.
func (s *fakeStorage) put(objectKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploaded == nil {
		s.uploaded = map[string]bool{}
	}
	s.uploaded[objectKey] = true
}

func (s *fakeStorage) ObjectExists(_ context.Context, objectKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploaded[objectKey], nil
}

func (s *fakeStorage) GeneratePresignedUploadURL(_ context.Context, objectKey, _ string, _ time.Duration) (string, error) {
	return "https://upload.test/" + objectKey, nil
}

func (s *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	if objectKey == s.failKey {
		return "", errors.New("signing failed")
	}
	return fmt.Sprintf("https://cdn.test/%s", objectKey), nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	return nil
}
