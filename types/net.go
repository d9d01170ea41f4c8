package types

// ------------------------
// Connectivity
// ------------------------

// ConnectivityState is owned by the connectivity supervisor.
// Invariant: SessionUp implies LinkUp.
type ConnectivityState struct {
	LinkUp    bool
	SessionUp bool
}

// Level renders the state the way bridge-style state topics do.
func (s ConnectivityState) Level() string {
	switch {
	case s.SessionUp:
		return "up"
	case s.LinkUp:
		return "degraded"
	default:
		return "down"
	}
}

// NetState is published (retained) on net/state at every transition.
type NetState struct {
	ConnectivityState
	Status string // short machine string
	Error  string // last failure, if any
	TSms   int64
}
