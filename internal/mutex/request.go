package mutex

import "fmt"

// ID identifies a process. IDs are totally ordered by string comparison and
// the order doubles as the tie-break between equal timestamps.
type ID string

// Request is a (timestamp, requester) bid.
type Request struct {
	Timestamp int64
	Requester ID
}

// Less reports whether r has priority over other: lower timestamp first, then
// lower requester identity.
func (r Request) Less(other Request) bool {
	if r.Timestamp != other.Timestamp {
		return r.Timestamp < other.Timestamp
	}
	return r.Requester < other.Requester
}

// String returns a string representation of the request.
func (r Request) String() string {
	return fmt.Sprintf("(%d,%s)", r.Timestamp, r.Requester)
}
