package callregistry

// transitions enumerates the allowed (from -> to) edges of spec.md §4.2.
// "Any non-terminal state -> canceled" is handled by a special case in
// CanTransition, and the "recorded" flag is set by Store.AttachRecording,
// since neither is a simple from-set.
var transitions = map[Status]map[Status]bool{
	StatusInitiated: {
		StatusRinging:  true,
		StatusBusy:     true,
		StatusNoAnswer: true,
		StatusFailed:   true,
	},
	StatusRinging: {
		StatusAnswered: true,
		StatusBusy:     true,
		StatusNoAnswer: true,
		StatusFailed:   true,
	},
	StatusAnswered: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusBusy:      true,
	StatusNoAnswer:  true,
	StatusFailed:    true,
	StatusCanceled:  true,
}

// IsTerminal reports whether status is one of the terminal states of
// spec.md §4.2.
func IsTerminal(status Status) bool {
	return terminalStatuses[status]
}

// CanTransition reports whether from -> to is an allowed edge, including
// the "any non-terminal state -> canceled" rule.
func CanTransition(from, to Status) bool {
	if to == StatusCanceled {
		return !IsTerminal(from)
	}
	if edges, ok := transitions[from]; ok {
		return edges[to]
	}
	return false
}
