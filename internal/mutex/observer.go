package mutex

import "fmt"

// Role is the side of the protocol an event belongs to.
type Role string

const (
	RoleRequester Role = "requester"
	RoleVoter     Role = "voter"
)

// Action labels what the engine did.
type Action string

const (
	ActionRequest    Action = "request"
	ActionGrant      Action = "grant"
	ActionDefer      Action = "defer"
	ActionInquire    Action = "inquire"
	ActionRelinquish Action = "relinquish"
	ActionCount      Action = "count"
	ActionEnter      Action = "enter"
	ActionExit       Action = "exit"
	ActionRotate     Action = "rotate"
	ActionUnvote     Action = "unvote"
	ActionStale      Action = "ignore-stale"
)

// Event is a trace record emitted by the engine.
type Event struct {
	Node   ID
	Role   Role
	Action Action
	Kind   Kind // message kind that triggered or was produced by the action
	Peer   ID   // counterpart, empty for local transitions
	Round  int64
}

// String returns a string representation of the event.
func (e Event) String() string {
	return fmt.Sprintf("%s %s kind=%s peer=%s round=%d", e.Role, e.Action, e.Kind, e.Peer, e.Round)
}

// Observer receives engine events. Implementations must not call back into
// the engine.
type Observer interface {
	Observe(Event)
}

// Logger is the subset of *log.Logger used by LogObserver.
type Logger interface {
	Printf(format string, v ...any)
}

// LogObserver writes every event to a Logger.
type LogObserver struct {
	Logger Logger
}

// Observe implements Observer.
func (o LogObserver) Observe(e Event) {
	o.Logger.Printf("[%s] %s", e.Node, e)
}

// NopObserver discards events.
type NopObserver struct{}

// Observe implements Observer.
func (NopObserver) Observe(Event) {}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Stats counts engine activity for observability.
type Stats struct {
	Admissions uint64
	Exits      uint64
	Grants     uint64
	Inquires   uint64
	Stale      uint64
}
