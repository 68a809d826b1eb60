package supervisor

import "fmt"

// State is the lifecycle state of the supervised server.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateError
)

var stateNames = []string{"stopped", "starting", "running", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, ok := ParseState(string(b))
	if !ok {
		return fmt.Errorf("unknown state %q", b)
	}
	*s = v
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(v string) (State, bool) {
	for i, n := range stateNames {
		if n == v {
			return State(i), true
		}
	}
	return StateStopped, false
}
