package arrangement

// DragSource tells where a dragged item came from.
type DragSource string

const (
	DragFromLibrary DragSource = "library"
	DragFromDay     DragSource = "day"
)

// DragItem is the item currently held by the pointer. It is UI state only:
// it never enters the plan and is never submitted.
type DragItem struct {
	Source      DragSource `json:"source"`
	ExerciseID  string     `json:"exerciseId"`
	PlacementID string     `json:"placementId,omitempty"` // Set when Source is DragFromDay
	FromDay     int        `json:"fromDay,omitempty"`
}

// BeginDrag records the active drag. Only one drag is active at a time; a
// new drag replaces whatever was held before.
func (s *Store) BeginDrag(item DragItem) {
	s.drag = &item
}

// EndDrag clears the active drag and returns it.
func (s *Store) EndDrag() (DragItem, bool) {
	if s.drag == nil {
		return DragItem{}, false
	}
	item := *s.drag
	s.drag = nil
	return item, true
}

// ActiveDrag returns the active drag, if any.
func (s *Store) ActiveDrag() (DragItem, bool) {
	if s.drag == nil {
		return DragItem{}, false
	}
	return *s.drag, true
}
