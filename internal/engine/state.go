package engine

// State is the lifecycle state of a record.
//
//	Conception ──commit──▶ Clean ◀──commit── Touched
//	                         └────mutate────▶   │
//	any ──delete──▶ Deletion ──commit──▶ (destroyed)
//
// States only change through event application.
type State int

const (
	// StateConception marks a record that is not yet in the file.
	StateConception State = iota
	// StateClean marks a record matching the file.
	StateClean
	// StateTouched marks a persisted record with uncommitted changes.
	StateTouched
	// StateDeletion marks a record queued for removal.
	StateDeletion
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConception:
		return "CONCEPTION"
	case StateClean:
		return "CLEAN"
	case StateTouched:
		return "TOUCHED"
	case StateDeletion:
		return "DELETION"
	default:
		return "UNKNOWN"
	}
}

// checkMutable returns an error for states that reject changes.
func (s State) checkMutable(r *Record) error {
	if s == StateDeletion {
		return newError(ErrCodeInvalidState, r, "record is marked for deletion")
	}
	return nil
}

// afterChange is the state a record moves to when a change is applied.
// New records stay in conception until their creating transaction commits.
func (s State) afterChange() State {
	if s == StateClean {
		return StateTouched
	}
	return s
}

// afterCommit is the state once all pending events of a record are
// committed.
func (s State) afterCommit() State {
	switch s {
	case StateConception, StateTouched:
		return StateClean
	default:
		return s
	}
}
