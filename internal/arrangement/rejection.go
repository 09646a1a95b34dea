package arrangement

import (
	"errors"
	"fmt"
)

// Reason identifies why an action was rejected. The codes are stable and are
// sent to clients so they can pick a user-facing warning.
type Reason string

const (
	ReasonDuplicateInDay       Reason = "duplicate_in_day"
	ReasonDuplicateInTargetDay Reason = "duplicate_in_target_day"
	ReasonInvalidPermutation   Reason = "invalid_permutation"
	ReasonLastDay              Reason = "last_day"
)

// Rejection is returned when a user action is refused. The plan is left in
// the state it had before the action.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("arrangement: action rejected: %s", r.Reason)
	}
	return fmt.Sprintf("arrangement: action rejected: %s: %s", r.Reason, r.Detail)
}

// Is matches any Rejection with the same reason, so callers can compare
// against the sentinels below with errors.Is.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return t.Reason == r.Reason
}

var (
	ErrDuplicateInDay       = &Rejection{Reason: ReasonDuplicateInDay}
	ErrDuplicateInTargetDay = &Rejection{Reason: ReasonDuplicateInTargetDay}
	ErrInvalidPermutation   = &Rejection{Reason: ReasonInvalidPermutation}
	ErrLastDay              = &Rejection{Reason: ReasonLastDay}
)

func reject(reason Reason, format string, args ...any) error {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err, if it is a rejection.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
