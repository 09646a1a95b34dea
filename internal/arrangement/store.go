package arrangement

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Store owns one Plan for the duration of an authoring session.
//
// Every mutating method either applies completely or returns a *Rejection
// and leaves the plan untouched. Referencing a day or placement that does not
// exist is a host bug and panics; hosts guard with HasDay and HasPlacement.
//
// A Store is not safe for concurrent use.
type Store struct {
	days  []Day
	newID func() string
	drag  *DragItem
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the placement id generator (random UUIDs by default).
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// NewStore returns a Store with an empty plan.
func NewStore(opts ...Option) *Store {
	s := &Store{newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Queries ---

// Len returns the number of days in the plan.
func (s *Store) Len() int { return len(s.days) }

// HasDay reports whether dayNumber addresses an existing day.
func (s *Store) HasDay(dayNumber int) bool {
	return dayNumber >= 1 && dayNumber <= len(s.days)
}

// HasPlacement reports whether placementID lives in the given day.
func (s *Store) HasPlacement(dayNumber int, placementID string) bool {
	if !s.HasDay(dayNumber) {
		return false
	}
	return s.days[dayNumber-1].indexOf(placementID) >= 0
}

// Days returns a deep copy of the plan's days for rendering.
func (s *Store) Days() []Day {
	out := make([]Day, len(s.days))
	for i, d := range s.days {
		out[i] = d.clone()
	}
	return out
}

// Day returns a deep copy of one day.
func (s *Store) Day(dayNumber int) Day {
	return s.mustDay(dayNumber).clone()
}

// TotalExercises counts placements across all days.
func (s *Store) TotalExercises() int {
	n := 0
	for i := range s.days {
		n += len(s.days[i].Exercises)
	}
	return n
}

// --- Day operations ---

// InitializeDays replaces the plan with count empty days. It does nothing
// when the plan already has days, so a repeated initialization trigger can
// never wipe out work in progress.
func (s *Store) InitializeDays(count int) {
	if len(s.days) > 0 {
		return
	}
	if count < 1 {
		count = 1
	}
	s.days = make([]Day, count)
	for i := range s.days {
		s.days[i] = Day{DayNumber: i + 1, Exercises: []Placement{}}
	}
}

// AddDay appends an empty day and returns its number.
func (s *Store) AddDay() int {
	s.days = append(s.days, Day{DayNumber: len(s.days) + 1, Exercises: []Placement{}})
	return len(s.days)
}

// DeleteDay removes a day and renumbers the ones after it. The last
// remaining day cannot be deleted.
func (s *Store) DeleteDay(dayNumber int) error {
	s.mustDay(dayNumber)
	if len(s.days) <= 1 {
		return reject(ReasonLastDay, "a plan keeps at least one day")
	}
	s.days = slices.Delete(s.days, dayNumber-1, dayNumber)
	s.renumberDays()
	return nil
}

// DuplicateDay appends a copy of the day at the end of the plan. The copies
// get fresh placement ids; everything else is carried over.
func (s *Store) DuplicateDay(dayNumber int) int {
	src := s.mustDay(dayNumber)
	dup := src.clone()
	for i := range dup.Exercises {
		dup.Exercises[i].PlacementID = s.newID()
	}
	dup.DayNumber = len(s.days) + 1
	s.days = append(s.days, dup)
	return dup.DayNumber
}

// UpdateDayDescription sets the free-text description of a day.
func (s *Store) UpdateDayDescription(dayNumber int, description string) {
	s.mustDay(dayNumber).Description = description
}

// --- Exercise operations ---

// AddExerciseToDay appends a new placement for exerciseID. An exercise may
// appear at most once per day.
func (s *Store) AddExerciseToDay(dayNumber int, exerciseID string, display DisplayFields) (Placement, error) {
	d := s.mustDay(dayNumber)
	if d.hasExercise(exerciseID) {
		return Placement{}, reject(ReasonDuplicateInDay, "exercise %s is already in day %d", exerciseID, dayNumber)
	}
	p := Placement{
		PlacementID:   s.newID(),
		ExerciseID:    exerciseID,
		OrderInDay:    len(d.Exercises) + 1,
		DisplayFields: display,
	}
	d.Exercises = append(d.Exercises, p)
	return p.clone(), nil
}

// MoveExercise relocates a placement to targetIndex of toDay. The index is
// clamped to the valid insertion range. A cross-day move into a day that
// already holds the same exercise is rejected before anything is removed.
func (s *Store) MoveExercise(placementID string, fromDay, toDay, targetIndex int) error {
	src := s.mustDay(fromDay)
	dst := s.mustDay(toDay)
	i := s.mustPlacement(src, placementID)
	p := src.Exercises[i]

	if fromDay == toDay {
		src.Exercises = slices.Delete(src.Exercises, i, i+1)
		src.Exercises = slices.Insert(src.Exercises, clamp(targetIndex, len(src.Exercises)), p)
		src.renumber()
		return nil
	}

	if dst.hasExercise(p.ExerciseID) {
		return reject(ReasonDuplicateInTargetDay, "exercise %s is already in day %d", p.ExerciseID, toDay)
	}
	src.Exercises = slices.Delete(src.Exercises, i, i+1)
	dst.Exercises = slices.Insert(dst.Exercises, clamp(targetIndex, len(dst.Exercises)), p)
	src.renumber()
	dst.renumber()
	return nil
}

// RemoveExercise deletes a placement and closes the gap it leaves.
func (s *Store) RemoveExercise(dayNumber int, placementID string) {
	d := s.mustDay(dayNumber)
	i := s.mustPlacement(d, placementID)
	d.Exercises = slices.Delete(d.Exercises, i, i+1)
	d.renumber()
}

// ReorderExercises applies a new order to a day. newOrder must name every
// placement of the day exactly once.
func (s *Store) ReorderExercises(dayNumber int, newOrder []string) error {
	d := s.mustDay(dayNumber)
	if len(newOrder) != len(d.Exercises) {
		return reject(ReasonInvalidPermutation, "day %d has %d exercises, got %d ids", dayNumber, len(d.Exercises), len(newOrder))
	}

	byID := make(map[string]Placement, len(d.Exercises))
	for _, p := range d.Exercises {
		byID[p.PlacementID] = p
	}
	reordered := make([]Placement, 0, len(newOrder))
	for _, id := range newOrder {
		p, ok := byID[id]
		if !ok {
			return reject(ReasonInvalidPermutation, "placement %q is not in day %d or is repeated", id, dayNumber)
		}
		delete(byID, id)
		reordered = append(reordered, p)
	}

	d.Exercises = reordered
	d.renumber()
	return nil
}

// UpdateExercisePlacement merges customization changes into a placement.
func (s *Store) UpdateExercisePlacement(dayNumber int, placementID string, upd PlacementUpdate) Placement {
	d := s.mustDay(dayNumber)
	p := &d.Exercises[s.mustPlacement(d, placementID)]
	if upd.CustomRepetitions != nil {
		p.CustomRepetitions = copyInt(upd.CustomRepetitions)
	}
	if upd.CustomSets != nil {
		p.CustomSets = copyInt(upd.CustomSets)
	}
	if upd.Notes != nil {
		p.Notes = *upd.Notes
	}
	return p.clone()
}

// --- internals ---

func (s *Store) mustDay(dayNumber int) *Day {
	if !s.HasDay(dayNumber) {
		panic(fmt.Sprintf("arrangement: day %d does not exist (plan has %d days)", dayNumber, len(s.days)))
	}
	return &s.days[dayNumber-1]
}

func (s *Store) mustPlacement(d *Day, placementID string) int {
	i := d.indexOf(placementID)
	if i < 0 {
		panic(fmt.Sprintf("arrangement: placement %q does not exist in day %d", placementID, d.DayNumber))
	}
	return i
}

func (s *Store) renumberDays() {
	for i := range s.days {
		s.days[i].DayNumber = i + 1
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
