package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rehabclinic/course-builder/internal/arrangement"
	"rehabclinic/course-builder/internal/catalog"
	"rehabclinic/course-builder/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type arrangementFixture struct {
	svc       ArrangementService
	users     *fakeUserRepo
	exercises *fakeExerciseRepo
	patients  PatientService
	therapist primitive.ObjectID
	patient   primitive.ObjectID
	bridge    string
	clamshell string
	squat     string
}

func newArrangementFixture(t *testing.T) *arrangementFixture {
	t.Helper()
	f := &arrangementFixture{users: newFakeUserRepo(), exercises: newFakeExerciseRepo()}
	f.therapist = f.users.seed("Tess", domain.RoleTherapist, nil)
	f.patient = f.users.seed("Paula", domain.RolePatient, &f.therapist)
	f.bridge = f.exercises.seed(f.therapist, "Bridge", 5, "img/bridge.png").Hex()
	f.clamshell = f.exercises.seed(f.therapist, "Clamshell", 3, "").Hex()
	f.squat = f.exercises.seed(f.therapist, "Squat", 4, "").Hex()

	exerciseSvc := NewExerciseService(f.exercises, &fakeStorage{}, CatalogLimits{DefaultPageSize: 20, MaxPageSize: 50}, zap.NewNop())
	f.patients = NewPatientService(f.users, zap.NewNop())
	f.svc = NewArrangementService(f.patients, exerciseSvc, SessionSettings{
		DefaultDays: 3,
		SessionTTL:  time.Hour,
	}, zap.NewNop())
	return f
}

func (f *arrangementFixture) open(t *testing.T, days int) *PlanView {
	t.Helper()
	view, err := f.svc.Open(context.Background(), f.therapist, f.patient, days)
	require.NoError(t, err)
	return view
}

func (f *arrangementFixture) add(t *testing.T, sid string, day int, exerciseID string) *PlanView {
	t.Helper()
	view, err := f.svc.AddExercise(context.Background(), f.therapist, sid, day, exerciseID)
	require.NoError(t, err)
	return view
}

func lastPlacement(view *PlanView, day int) arrangement.Placement {
	ex := view.Days[day-1].Exercises
	return ex[len(ex)-1]
}

func TestArrangementService_Open(t *testing.T) {
	f := newArrangementFixture(t)

	view := f.open(t, 0)
	assert.Len(t, view.Days, 3)
	assert.Equal(t, f.patient.Hex(), view.PatientID)
	assert.NotEmpty(t, view.SessionID)

	view = f.open(t, 5)
	assert.Len(t, view.Days, 5)

	stranger := f.users.seed("Sam", domain.RolePatient, nil)
	_, err := f.svc.Open(context.Background(), f.therapist, stranger, 1)
	assert.ErrorIs(t, err, ErrPatientNotManaged)
}

func TestArrangementService_AddExercise(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 2).SessionID

	view := f.add(t, sid, 1, f.bridge)
	p := lastPlacement(view, 1)
	assert.Equal(t, f.bridge, p.ExerciseID)
	assert.Equal(t, "Bridge", p.Title)
	assert.Equal(t, 5, p.DurationMinutes)
	assert.Equal(t, "https://cdn.test/img/bridge.png", p.ImageURL)
	assert.Equal(t, 1, p.OrderInDay)

	_, err := f.svc.AddExercise(context.Background(), f.therapist, sid, 1, f.bridge)
	assert.ErrorIs(t, err, arrangement.ErrDuplicateInDay)
	reason, ok := arrangement.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, arrangement.ReasonDuplicateInDay, reason)

	// The same exercise may appear on another day.
	f.add(t, sid, 2, f.bridge)

	_, err = f.svc.AddExercise(context.Background(), f.therapist, sid, 9, f.bridge)
	assert.ErrorIs(t, err, ErrDayNotFound)

	_, err = f.svc.AddExercise(context.Background(), f.therapist, sid, 1, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestArrangementService_MoveRemoveReorder(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 2).SessionID
	f.add(t, sid, 1, f.bridge)
	f.add(t, sid, 1, f.clamshell)
	view := f.add(t, sid, 1, f.squat)
	ids := []string{
		view.Days[0].Exercises[0].PlacementID,
		view.Days[0].Exercises[1].PlacementID,
		view.Days[0].Exercises[2].PlacementID,
	}

	view, err := f.svc.ReorderExercises(f.therapist, sid, 1, []string{ids[2], ids[0], ids[1]})
	require.NoError(t, err)
	assert.Equal(t, ids[2], view.Days[0].Exercises[0].PlacementID)

	_, err = f.svc.ReorderExercises(f.therapist, sid, 1, []string{ids[0]})
	assert.ErrorIs(t, err, arrangement.ErrInvalidPermutation)

	view, err = f.svc.MoveExercise(f.therapist, sid, MoveRequest{PlacementID: ids[0], FromDay: 1, ToDay: 2, TargetIndex: 99})
	require.NoError(t, err)
	assert.Len(t, view.Days[0].Exercises, 2)
	require.Len(t, view.Days[1].Exercises, 1)
	assert.Equal(t, ids[0], view.Days[1].Exercises[0].PlacementID)

	_, err = f.svc.MoveExercise(f.therapist, sid, MoveRequest{PlacementID: ids[0], FromDay: 1, ToDay: 2})
	assert.ErrorIs(t, err, ErrPlacementNotFound)
	_, err = f.svc.MoveExercise(f.therapist, sid, MoveRequest{PlacementID: ids[1], FromDay: 1, ToDay: 7})
	assert.ErrorIs(t, err, ErrDayNotFound)

	view, err = f.svc.RemoveExercise(f.therapist, sid, 1, ids[2])
	require.NoError(t, err)
	require.Len(t, view.Days[0].Exercises, 1)
	assert.Equal(t, 1, view.Days[0].Exercises[0].OrderInDay)

	_, err = f.svc.RemoveExercise(f.therapist, sid, 1, ids[2])
	assert.ErrorIs(t, err, ErrPlacementNotFound)
}

func TestArrangementService_UpdatePlacement(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID
	pid := lastPlacement(f.add(t, sid, 1, f.bridge), 1).PlacementID

	reps, sets, notes := 12, 3, "slow tempo"
	view, err := f.svc.UpdatePlacement(f.therapist, sid, 1, pid, arrangement.PlacementUpdate{
		CustomRepetitions: &reps, CustomSets: &sets, Notes: &notes,
	})
	require.NoError(t, err)
	p := view.Days[0].Exercises[0]
	require.NotNil(t, p.CustomRepetitions)
	assert.Equal(t, 12, *p.CustomRepetitions)
	assert.Equal(t, "slow tempo", p.Notes)

	neg := -1
	_, err = f.svc.UpdatePlacement(f.therapist, sid, 1, pid, arrangement.PlacementUpdate{CustomSets: &neg})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestArrangementService_Days(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID
	f.add(t, sid, 1, f.bridge)

	_, err := f.svc.DeleteDay(f.therapist, sid, 1)
	assert.ErrorIs(t, err, arrangement.ErrLastDay)

	view, err := f.svc.DuplicateDay(f.therapist, sid, 1)
	require.NoError(t, err)
	require.Len(t, view.Days, 2)
	assert.NotEqual(t, view.Days[0].Exercises[0].PlacementID, view.Days[1].Exercises[0].PlacementID)

	view, err = f.svc.UpdateDayDescription(f.therapist, sid, 2, "Recovery")
	require.NoError(t, err)
	assert.Equal(t, "Recovery", view.Days[1].Description)

	view, err = f.svc.AddDay(f.therapist, sid)
	require.NoError(t, err)
	assert.Len(t, view.Days, 3)

	view, err = f.svc.DeleteDay(f.therapist, sid, 1)
	require.NoError(t, err)
	require.Len(t, view.Days, 2)
	assert.Equal(t, "Recovery", view.Days[0].Description)
	assert.Equal(t, 1, view.Days[0].DayNumber)

	_, err = f.svc.DuplicateDay(f.therapist, sid, 3)
	assert.ErrorIs(t, err, ErrDayNotFound)
}

func TestArrangementService_SessionAccess(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID

	_, err := f.svc.Get(primitive.NewObjectID(), sid)
	assert.ErrorIs(t, err, ErrSessionAccessDenied)

	_, err = f.svc.Get(f.therapist, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, f.svc.Discard(f.therapist, sid))
	_, err = f.svc.Get(f.therapist, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestArrangementService_DragEndsOnDrop(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID

	view, err := f.svc.BeginDrag(f.therapist, sid, arrangement.DragItem{Source: arrangement.DragFromLibrary, ExerciseID: f.bridge})
	require.NoError(t, err)
	require.NotNil(t, view.ActiveDrag)

	view = f.add(t, sid, 1, f.bridge)
	assert.Nil(t, view.ActiveDrag)

	_, err = f.svc.BeginDrag(f.therapist, sid, arrangement.DragItem{Source: arrangement.DragFromDay, PlacementID: "nope", FromDay: 1})
	assert.ErrorIs(t, err, ErrPlacementNotFound)

	pid := view.Days[0].Exercises[0].PlacementID
	_, err = f.svc.BeginDrag(f.therapist, sid, arrangement.DragItem{Source: arrangement.DragFromDay, PlacementID: pid, ExerciseID: f.bridge, FromDay: 1})
	require.NoError(t, err)
	view, err = f.svc.EndDrag(f.therapist, sid)
	require.NoError(t, err)
	assert.Nil(t, view.ActiveDrag)
	// A cancelled drag leaves the plan as it was.
	assert.Len(t, view.Days[0].Exercises, 1)
}

func TestArrangementService_BrowseLibrary(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := f.svc.BrowseLibrary(ctx, f.therapist, sid, catalog.Query{Text: "bri"})
	require.NoError(t, err)
	assert.False(t, snap.Loading)
	require.Len(t, snap.Page.Items, 1)
	assert.Equal(t, f.bridge, snap.Page.Items[0].ExerciseID)

	// Hits on the current page are placed from the page itself.
	id, _ := primitive.ObjectIDFromHex(f.bridge)
	require.NoError(t, f.exercises.Delete(context.Background(), id))
	view := f.add(t, sid, 1, f.bridge)
	assert.Equal(t, "Bridge", view.Days[0].Exercises[0].Title)
}

func TestArrangementService_BrowseLibraryTimeout(t *testing.T) {
	f := newArrangementFixture(t)
	f.svc = NewArrangementService(f.patients, NewExerciseService(f.exercises, &fakeStorage{}, CatalogLimits{}, zap.NewNop()), SessionSettings{
		DefaultDays:  1,
		SessionTTL:   time.Hour,
		FetchTimeout: 20 * time.Millisecond,
	}, zap.NewNop())
	sid := f.open(t, 1).SessionID
	f.exercises.mu.Lock()
	f.exercises.stall = true
	f.exercises.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := f.svc.BrowseLibrary(ctx, f.therapist, sid, catalog.Query{Text: "bri"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, snap.Loading)

	// A caller that gives up first gets its own context error.
	gone, stop := context.WithCancel(context.Background())
	stop()
	_, err = f.svc.BrowseLibrary(gone, f.therapist, sid, catalog.Query{Text: "squ"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArrangementService_CommitKeepsSessionOnFailure(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID
	f.add(t, sid, 1, f.bridge)

	err := f.svc.Commit(f.therapist, sid, "Knee", "", func(arrangement.Submission) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	_, err = f.svc.Get(f.therapist, sid)
	require.NoError(t, err)

	var got arrangement.Submission
	require.NoError(t, f.svc.Commit(f.therapist, sid, "Knee", "week one", func(sub arrangement.Submission) error {
		got = sub
		return nil
	}))
	assert.Equal(t, "Knee", got.Title)
	assert.Equal(t, f.patient.Hex(), got.PatientID)
	require.Len(t, got.Days, 1)
	assert.Equal(t, f.bridge, got.Days[0].Exercises[0].ExerciseID)

	_, err = f.svc.Get(f.therapist, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestArrangementService_SweepExpiresIdleSessions(t *testing.T) {
	f := newArrangementFixture(t)
	impl := f.svc.(*arrangementService)

	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	impl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	idle := f.open(t, 1).SessionID
	advance(40 * time.Minute)
	busy := f.open(t, 1).SessionID
	advance(30 * time.Minute)
	_, err := f.svc.Get(f.therapist, busy)
	require.NoError(t, err)

	assert.Equal(t, 1, impl.sweep())
	_, err = f.svc.Get(f.therapist, idle)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Get(f.therapist, busy)
	assert.NoError(t, err)
}

func TestArrangementService_ConcurrentActionsKeepPlanConsistent(t *testing.T) {
	f := newArrangementFixture(t)
	sid := f.open(t, 1).SessionID

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.AddDay(f.therapist, sid)
		}()
	}
	wg.Wait()

	view, err := f.svc.Get(f.therapist, sid)
	require.NoError(t, err)
	require.Len(t, view.Days, 9)
	for i, d := range view.Days {
		assert.Equal(t, i+1, d.DayNumber)
	}
}
