package mutex

import "time"

// Transport delivers messages to other nodes. Sends are fire-and-forget.
// The engine never passes its own ID to a Transport.
type Transport interface {
	Unicast(to ID, msg Message)
	Broadcast(to []ID, msg Message)
}

// TimerService runs fn once after d. The host must serialize fn with every
// other call into the engine.
type TimerService interface {
	ScheduleAfter(d time.Duration, fn func())
}

// Clock returns the current logical round.
type Clock interface {
	Now() int64
}

// CoterieProvider returns the voting peers of a node.
type CoterieProvider interface {
	CoterieOf(id ID) []ID
}
