package process

// State tracks one subprocess invocation.
//
//	NotRun -> Running -> Succeeded | FailedNonzero | FailedTimeout
type State int

const (
	NotRun State = iota
	Running
	Succeeded
	FailedNonzero
	FailedTimeout
)

func (s State) String() string {
	switch s {
	case NotRun:
		return "not_run"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case FailedNonzero:
		return "failed_nonzero"
	case FailedTimeout:
		return "failed_timeout"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Succeeded || s == FailedNonzero || s == FailedTimeout
}

// ParseState is the inverse of String. Unknown names map to NotRun.
func ParseState(s string) State {
	for _, st := range []State{Running, Succeeded, FailedNonzero, FailedTimeout} {
		if st.String() == s {
			return st
		}
	}
	return NotRun
}
