package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rehabclinic/course-builder/internal/arrangement"
	"rehabclinic/course-builder/internal/catalog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrSessionNotFound     = errors.New("arrangement session not found")
	ErrSessionAccessDenied = errors.New("arrangement session belongs to another therapist")
	ErrDayNotFound         = errors.New("day not found in plan")
	ErrPlacementNotFound   = errors.New("exercise placement not found in day")
)

// PlanView is the authoritative plan state returned after every action.
type PlanView struct {
	SessionID  string                `json:"sessionId"`
	PatientID  string                `json:"patientId"`
	Days       []arrangement.Day     `json:"days"`
	ActiveDrag *arrangement.DragItem `json:"activeDrag,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// MoveRequest relocates one placement.
type MoveRequest struct {
	PlacementID string `json:"placementId" binding:"required"`
	FromDay     int    `json:"fromDay" binding:"required,min=1"`
	ToDay       int    `json:"toDay" binding:"required,min=1"`
	TargetIndex int    `json:"targetIndex"`
}

// ArrangementService keeps the in-memory authoring sessions in which
// therapists arrange exercises into course days.
type ArrangementService interface {
	Open(ctx context.Context, therapistID, patientID primitive.ObjectID, days int) (*PlanView, error)
	Get(therapistID primitive.ObjectID, sessionID string) (*PlanView, error)
	Discard(therapistID primitive.ObjectID, sessionID string) error

	AddDay(therapistID primitive.ObjectID, sessionID string) (*PlanView, error)
	DeleteDay(therapistID primitive.ObjectID, sessionID string, day int) (*PlanView, error)
	DuplicateDay(therapistID primitive.ObjectID, sessionID string, day int) (*PlanView, error)
	UpdateDayDescription(therapistID primitive.ObjectID, sessionID string, day int, description string) (*PlanView, error)

	AddExercise(ctx context.Context, therapistID primitive.ObjectID, sessionID string, day int, exerciseID string) (*PlanView, error)
	MoveExercise(therapistID primitive.ObjectID, sessionID string, req MoveRequest) (*PlanView, error)
	RemoveExercise(therapistID primitive.ObjectID, sessionID string, day int, placementID string) (*PlanView, error)
	ReorderExercises(therapistID primitive.ObjectID, sessionID string, day int, placementIDs []string) (*PlanView, error)
	UpdatePlacement(therapistID primitive.ObjectID, sessionID string, day int, placementID string, upd arrangement.PlacementUpdate) (*PlanView, error)

	BeginDrag(therapistID primitive.ObjectID, sessionID string, item arrangement.DragItem) (*PlanView, error)
	EndDrag(therapistID primitive.ObjectID, sessionID string) (*PlanView, error)

	// BrowseLibrary loads a catalog page into the session's library panel.
	BrowseLibrary(ctx context.Context, therapistID primitive.ObjectID, sessionID string, q catalog.Query) (catalog.Snapshot, error)

	// Commit hands the finished plan to persist and, if persist succeeds,
	// closes the session. The session is locked for the whole call.
	Commit(therapistID primitive.ObjectID, sessionID, title, description string, persist func(arrangement.Submission) error) error

	// Run sweeps idle sessions until ctx is done.
	Run(ctx context.Context)
}

// SessionSettings configures session lifetime and defaults.
type SessionSettings struct {
	DefaultDays   int
	SessionTTL    time.Duration
	SweepInterval time.Duration
	FetchTimeout  time.Duration
}

type session struct {
	mu          sync.Mutex
	id          string
	therapistID primitive.ObjectID
	patientID   primitive.ObjectID
	store       *arrangement.Store
	library     *catalog.Library
	lastUsed    time.Time
}

type arrangementService struct {
	patients  PatientService
	exercises ExerciseService
	settings  SessionSettings
	logger    *zap.Logger
	now       func() time.Time
	newStore  func() *arrangement.Store

	mu       sync.Mutex
	sessions map[string]*session
}

// NewArrangementService creates the session registry.
func NewArrangementService(patients PatientService, exercises ExerciseService, settings SessionSettings, logger *zap.Logger) ArrangementService {
	if settings.DefaultDays < 1 {
		settings.DefaultDays = 1
	}
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = 2 * time.Hour
	}
	if settings.SweepInterval <= 0 {
		settings.SweepInterval = 5 * time.Minute
	}
	if settings.FetchTimeout <= 0 {
		settings.FetchTimeout = 10 * time.Second
	}
	return &arrangementService{
		patients:  patients,
		exercises: exercises,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
		newStore:  func() *arrangement.Store { return arrangement.NewStore() },
		sessions:  map[string]*session{},
	}
}

// === Session lifecycle ===

func (s *arrangementService) Open(ctx context.Context, therapistID, patientID primitive.ObjectID, days int) (*PlanView, error) {
	if err := s.patients.EnsureManaged(ctx, therapistID, patientID); err != nil {
		return nil, err
	}
	if days < 1 {
		days = s.settings.DefaultDays
	}

	sess := &session{
		id:          uuid.NewString(),
		therapistID: therapistID,
		patientID:   patientID,
		store:       s.newStore(),
		library:     catalog.NewLibrary(s.exercises, s.logger),
		lastUsed:    s.now(),
	}
	sess.store.InitializeDays(days)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("Arrangement session opened",
		zap.String("sessionId", sess.id),
		zap.String("therapistId", therapistID.Hex()),
		zap.String("patientId", patientID.Hex()),
		zap.Int("days", days))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

func (s *arrangementService) Get(therapistID primitive.ObjectID, sessionID string) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(*arrangement.Store) error { return nil })
}

func (s *arrangementService) Discard(therapistID primitive.ObjectID, sessionID string) error {
	sess, err := s.lookup(therapistID, sessionID)
	if err != nil {
		return err
	}
	s.drop(sess)
	s.logger.Info("Arrangement session discarded", zap.String("sessionId", sessionID))
	return nil
}

func (s *arrangementService) lookup(therapistID primitive.ObjectID, sessionID string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.therapistID != therapistID {
		return nil, ErrSessionAccessDenied
	}
	return sess, nil
}

func (s *arrangementService) drop(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.library.Close()
}

// apply runs fn against the session's store under the session lock and
// returns the resulting plan. fn must check every day and placement it
// touches, since the store panics on unknown targets.
func (s *arrangementService) apply(therapistID primitive.ObjectID, sessionID string, fn func(*arrangement.Store) error) (*PlanView, error) {
	sess, err := s.lookup(therapistID, sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	// The janitor may have dropped the session while we waited for the lock.
	if !s.alive(sess) {
		return nil, ErrSessionNotFound
	}
	sess.lastUsed = s.now()

	if err := fn(sess.store); err != nil {
		if reason, ok := arrangement.ReasonOf(err); ok {
			s.logger.Info("Arrangement action rejected",
				zap.String("sessionId", sessionID),
				zap.String("reason", string(reason)))
		}
		return nil, err
	}
	return s.view(sess), nil
}

func (s *arrangementService) alive(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sess.id] == sess
}

// view must be called with sess.mu held.
func (s *arrangementService) view(sess *session) *PlanView {
	v := &PlanView{
		SessionID: sess.id,
		PatientID: sess.patientID.Hex(),
		Days:      sess.store.Days(),
		UpdatedAt: sess.lastUsed,
	}
	if item, ok := sess.store.ActiveDrag(); ok {
		v.ActiveDrag = &item
	}
	return v
}

func needDay(st *arrangement.Store, day int) error {
	if !st.HasDay(day) {
		return ErrDayNotFound
	}
	return nil
}

func needPlacement(st *arrangement.Store, day int, placementID string) error {
	if err := needDay(st, day); err != nil {
		return err
	}
	if !st.HasPlacement(day, placementID) {
		return ErrPlacementNotFound
	}
	return nil
}

// === Day actions ===

func (s *arrangementService) AddDay(therapistID primitive.ObjectID, sessionID string) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		st.AddDay()
		return nil
	})
}

func (s *arrangementService) DeleteDay(therapistID primitive.ObjectID, sessionID string, day int) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needDay(st, day); err != nil {
			return err
		}
		return st.DeleteDay(day)
	})
}

func (s *arrangementService) DuplicateDay(therapistID primitive.ObjectID, sessionID string, day int) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needDay(st, day); err != nil {
			return err
		}
		st.DuplicateDay(day)
		return nil
	})
}

func (s *arrangementService) UpdateDayDescription(therapistID primitive.ObjectID, sessionID string, day int, description string) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needDay(st, day); err != nil {
			return err
		}
		st.UpdateDayDescription(day, description)
		return nil
	})
}

// === Exercise actions ===

// AddExercise places a catalog exercise on a day. Display fields come from
// the session's library page when the exercise is on it, otherwise from the
// catalog itself.
func (s *arrangementService) AddExercise(ctx context.Context, therapistID primitive.ObjectID, sessionID string, day int, exerciseID string) (*PlanView, error) {
	sess, err := s.lookup(therapistID, sessionID)
	if err != nil {
		return nil, err
	}

	hit, ok := sess.library.Lookup(exerciseID)
	if !ok {
		if hit, err = s.exercises.Hit(ctx, exerciseID); err != nil {
			return nil, err
		}
	}

	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needDay(st, day); err != nil {
			return err
		}
		_, err := st.AddExerciseToDay(day, hit.ExerciseID, catalog.DisplayFieldsFromHit(hit))
		if err == nil {
			// A drop from the library ends the drag that carried it.
			if item, ok := st.ActiveDrag(); ok && item.ExerciseID == hit.ExerciseID {
				st.EndDrag()
			}
		}
		return err
	})
}

func (s *arrangementService) MoveExercise(therapistID primitive.ObjectID, sessionID string, req MoveRequest) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needPlacement(st, req.FromDay, req.PlacementID); err != nil {
			return err
		}
		if err := needDay(st, req.ToDay); err != nil {
			return err
		}
		err := st.MoveExercise(req.PlacementID, req.FromDay, req.ToDay, req.TargetIndex)
		if err == nil {
			if item, ok := st.ActiveDrag(); ok && item.PlacementID == req.PlacementID {
				st.EndDrag()
			}
		}
		return err
	})
}

func (s *arrangementService) RemoveExercise(therapistID primitive.ObjectID, sessionID string, day int, placementID string) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needPlacement(st, day, placementID); err != nil {
			return err
		}
		st.RemoveExercise(day, placementID)
		return nil
	})
}

func (s *arrangementService) ReorderExercises(therapistID primitive.ObjectID, sessionID string, day int, placementIDs []string) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needDay(st, day); err != nil {
			return err
		}
		return st.ReorderExercises(day, placementIDs)
	})
}

func (s *arrangementService) UpdatePlacement(therapistID primitive.ObjectID, sessionID string, day int, placementID string, upd arrangement.PlacementUpdate) (*PlanView, error) {
	if (upd.CustomRepetitions != nil && *upd.CustomRepetitions < 0) || (upd.CustomSets != nil && *upd.CustomSets < 0) {
		return nil, ErrValidationFailed
	}
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if err := needPlacement(st, day, placementID); err != nil {
			return err
		}
		st.UpdateExercisePlacement(day, placementID, upd)
		return nil
	})
}

// === Drag state ===

func (s *arrangementService) BeginDrag(therapistID primitive.ObjectID, sessionID string, item arrangement.DragItem) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		if item.Source == arrangement.DragFromDay {
			if err := needPlacement(st, item.FromDay, item.PlacementID); err != nil {
				return err
			}
		}
		st.BeginDrag(item)
		return nil
	})
}

func (s *arrangementService) EndDrag(therapistID primitive.ObjectID, sessionID string) (*PlanView, error) {
	return s.apply(therapistID, sessionID, func(st *arrangement.Store) error {
		st.EndDrag()
		return nil
	})
}

// === Library ===

// BrowseLibrary starts a catalog fetch for the session and waits for it to
// settle or for ctx to end. A newer browse request for the same session
// cancels this one; the caller then sees the newer query still loading.
// A fetch that runs past FetchTimeout is returned as an error wrapping
// context.DeadlineExceeded. Other fetch failures come back in Snapshot.Err.
func (s *arrangementService) BrowseLibrary(ctx context.Context, therapistID primitive.ObjectID, sessionID string, q catalog.Query) (catalog.Snapshot, error) {
	sess, err := s.lookup(therapistID, sessionID)
	if err != nil {
		return catalog.Snapshot{}, err
	}

	// The fetch outlives the request so a slow page still lands in the panel.
	fetchCtx, cancel := context.WithTimeout(context.Background(), s.settings.FetchTimeout)
	sess.library.Load(fetchCtx, q)
	go func() {
		defer cancel()
		_ = sess.library.Wait(fetchCtx)
	}()

	if err := sess.library.Wait(ctx); err != nil {
		return catalog.Snapshot{}, err
	}
	snap := sess.library.Current()
	if errors.Is(snap.Err, context.DeadlineExceeded) {
		return snap, fmt.Errorf("catalog fetch for %q: %w", snap.Query.Text, snap.Err)
	}
	return snap, nil
}

// === Submission ===

func (s *arrangementService) Commit(therapistID primitive.ObjectID, sessionID, title, description string, persist func(arrangement.Submission) error) error {
	sess, err := s.lookup(therapistID, sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.alive(sess) {
		return ErrSessionNotFound
	}

	sub := sess.store.Submission(sess.patientID.Hex(), title, description)
	if err := persist(sub); err != nil {
		return err
	}
	s.drop(sess)
	return nil
}

// === Janitor ===

func (s *arrangementService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.settings.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.logger.Info("Expired idle arrangement sessions", zap.Int("count", n))
			}
		}
	}
}

// sweep drops sessions idle for longer than the TTL. A session that is
// locked by an in-flight action is left for the next sweep.
func (s *arrangementService) sweep() int {
	cutoff := s.now().Add(-s.settings.SessionTTL)

	s.mu.Lock()
	candidates := make([]*session, 0)
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.Unlock()

	n := 0
	for _, sess := range candidates {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.lastUsed.Before(cutoff) {
			s.drop(sess)
			n++
		}
		sess.mu.Unlock()
	}
	return n
}
