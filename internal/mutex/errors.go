package mutex

import "errors"

var (
	// ErrEmptyQueue is returned when extracting from an empty deferred queue.
	ErrEmptyQueue = errors.New("deferred queue is empty")
	// ErrDuplicateEntryRequest is returned by RequestEntry while a bid is
	// outstanding or the node is already in its critical section.
	ErrDuplicateEntryRequest = errors.New("entry already requested")
	// ErrNotInCriticalSection is returned by ExitEntry outside the critical section.
	ErrNotInCriticalSection = errors.New("not in critical section")
	// ErrUnknownMessage is returned for a message kind the engine does not handle.
	ErrUnknownMessage = errors.New("unknown message kind")
)
