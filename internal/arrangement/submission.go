package arrangement

import "sort"

// Submission is the finished plan in the shape the course-creation
// collaborator expects.
type Submission struct {
	PatientID   string         `json:"patientId"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Days        []SubmittedDay `json:"days"`
}

type SubmittedDay struct {
	DayNumber   int                 `json:"dayNumber"`
	Description string              `json:"description,omitempty"`
	Exercises   []SubmittedExercise `json:"exercises"`
}

type SubmittedExercise struct {
	ExerciseID        string `json:"exerciseId"`
	OrderInDay        int    `json:"orderInDay"`
	CustomRepetitions *int   `json:"customRepetitions,omitempty"`
	CustomSets        *int   `json:"customSets,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Submission builds the outgoing plan: days ascending by number and, within
// each day, exercises ascending by order.
func (s *Store) Submission(patientID, title, description string) Submission {
	out := Submission{
		PatientID:   patientID,
		Title:       title,
		Description: description,
		Days:        make([]SubmittedDay, 0, len(s.days)),
	}
	for _, d := range s.days {
		sd := SubmittedDay{
			DayNumber:   d.DayNumber,
			Description: d.Description,
			Exercises:   make([]SubmittedExercise, 0, len(d.Exercises)),
		}
		for _, p := range d.Exercises {
			sd.Exercises = append(sd.Exercises, SubmittedExercise{
				ExerciseID:        p.ExerciseID,
				OrderInDay:        p.OrderInDay,
				CustomRepetitions: copyInt(p.CustomRepetitions),
				CustomSets:        copyInt(p.CustomSets),
				Notes:             p.Notes,
			})
		}
		sort.SliceStable(sd.Exercises, func(i, j int) bool {
			return sd.Exercises[i].OrderInDay < sd.Exercises[j].OrderInDay
		})
		out.Days = append(out.Days, sd)
	}
	sort.SliceStable(out.Days, func(i, j int) bool {
		return out.Days[i].DayNumber < out.Days[j].DayNumber
	})
	return out
}
