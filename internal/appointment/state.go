package appointment

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s AppointmentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
