package navigation

import "fmt"

// State is the controller's position in the flush-then-load cycle.
type State int32

const (
	// Idle: the live document is fully loaded and no flush is being prepared.
	Idle State = iota
	// Flushing: the document being left is resolved and its snapshots dispatched.
	Flushing
	// Loading: transcript, fields and previous snapshots of the next document are being fetched.
	Loading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Flushing:
		return "flushing"
	case Loading:
		return "loading"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
