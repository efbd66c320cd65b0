package lifecycle

import "sync"

// State is the phase of a Runtime.
type State int32

const (
	// Running: the listener accepts connections.
	Running State = iota
	// Draining: the listener is closed and in-flight requests are finishing.
	Draining
	// Stopped: every connection is closed.
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// machine is a protected State with functionality to transition, check and
// wait.
type machine struct {
	cond  sync.Cond
	state State
}

func newMachine() *machine {
	return &machine{
		cond:  sync.Cond{L: &sync.Mutex{}},
		state: Running,
	}
}

// transition moves from one state to the next, reporting whether this call
// made the move.  Only the first of several concurrent callers succeeds.
func (m *machine) transition(from, to State) bool {
	m.cond.L.Lock()
	defer m.cond.L.Unlock()
	if m.state != from {
		return false
	}
	m.state = to
	m.cond.Broadcast()
	return true
}

// get returns the state without blocking.
func (m *machine) get() State {
	m.cond.L.Lock()
	defer m.cond.L.Unlock()
	return m.state
}

// wait blocks until the state is at least s.
func (m *machine) wait(s State) {
	m.cond.L.Lock()
	defer m.cond.L.Unlock()
	for m.state < s {
		m.cond.Wait()
	}
}
