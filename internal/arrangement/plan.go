// Package arrangement holds the in-memory course-day/exercise arrangement
// engine: the Plan a therapist builds day by day, and the Store that applies
// every user action to it while keeping day numbers, order numbers and
// placement identities consistent.
package arrangement

// DisplayFields are copied from the catalog when an exercise is placed.
// They are for rendering only and are never re-validated.
type DisplayFields struct {
	Title           string `json:"title,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
}

// Customization holds the per-placement fields a therapist can edit without
// touching the placement's position.
type Customization struct {
	CustomRepetitions *int   `json:"customRepetitions,omitempty"`
	CustomSets        *int   `json:"customSets,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Placement is one catalog exercise scheduled on one day.
type Placement struct {
	PlacementID string `json:"placementId"` // Assigned once, survives moves and reorders
	ExerciseID  string `json:"exerciseId"`  // Catalog reference, immutable once placed
	OrderInDay  int    `json:"orderInDay"`  // Always index+1 within the owning day
	DisplayFields
	Customization
}

// Day is one numbered bucket of the plan.
type Day struct {
	DayNumber   int         `json:"dayNumber"`
	Description string      `json:"description,omitempty"`
	Exercises   []Placement `json:"exercises"`
}

// PlacementUpdate carries customization changes. Nil fields are left as they are.
type PlacementUpdate struct {
	CustomRepetitions *int    `json:"customRepetitions,omitempty"`
	CustomSets        *int    `json:"customSets,omitempty"`
	Notes             *string `json:"notes,omitempty"`
}

func (d *Day) indexOf(placementID string) int {
	for i := range d.Exercises {
		if d.Exercises[i].PlacementID == placementID {
			return i
		}
	}
	return -1
}

func (d *Day) hasExercise(exerciseID string) bool {
	for i := range d.Exercises {
		if d.Exercises[i].ExerciseID == exerciseID {
			return true
		}
	}
	return false
}

// renumber rewrites OrderInDay from the current slice positions.
func (d *Day) renumber() {
	for i := range d.Exercises {
		d.Exercises[i].OrderInDay = i + 1
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (c Customization) clone() Customization {
	return Customization{
		CustomRepetitions: copyInt(c.CustomRepetitions),
		CustomSets:        copyInt(c.CustomSets),
		Notes:             c.Notes,
	}
}

func (p Placement) clone() Placement {
	p.Customization = p.Customization.clone()
	return p
}

func (d Day) clone() Day {
	out := Day{
		DayNumber:   d.DayNumber,
		Description: d.Description,
		Exercises:   make([]Placement, len(d.Exercises)),
	}
	for i, p := range d.Exercises {
		out.Exercises[i] = p.clone()
	}
	return out
}
