// Package mutex implements the per-node state machine of Sanders' coterie
// based mutual exclusion algorithm. A node is simultaneously a requester
// bidding for its own critical section and a voter for the members whose
// coterie contains it. Delivery, timers, coterie layout and the logical clock
// are collaborators supplied by the host.
//
// An Engine is not safe for concurrent use; the host must serialize every
// call (inbound messages, timer callbacks and local triggers).
package mutex
