package gateway

import "fmt"

// State is the lifecycle stage of a connection.
type State int

const (
	Connecting State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists every legal edge. Closed is terminal.
var transitions = map[State]map[State]bool{
	Connecting:    {Authenticated: true, Closed: true},
	Authenticated: {Closed: true},
}

func canTransition(from, to State) bool {
	return transitions[from][to]
}
