package app

import "fmt"

// State is a recognition session state.
//
// Sessions move INIT -> CAPTURING -> (MATCHED | NO_FACE_TIMEOUT | ERROR) -> CLOSED.
type State int

const (
	StateInit State = iota
	StateCapturing
	StateMatched
	StateNoFaceTimeout
	StateError
	StateClosed
)

var stateNames = [...]string{
	StateInit:          "INIT",
	StateCapturing:     "CAPTURING",
	StateMatched:       "MATCHED",
	StateNoFaceTimeout: "NO_FACE_TIMEOUT",
	StateError:         "ERROR",
	StateClosed:        "CLOSED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s ends the capture phase.
func (s State) Terminal() bool {
	return s == StateMatched || s == StateNoFaceTimeout || s == StateError
}
