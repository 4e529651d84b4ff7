package clock

import (
	"strconv"
	"sync/atomic"
)

// Logical is a monotonically increasing round counter.
// The zero value is a clock at round 0 ready to use. Safe for concurrent use.
type Logical struct {
	round atomic.Int64
}

// New creates a clock starting at the given round.
func New(start int64) *Logical {
	c := &Logical{}
	c.round.Store(start)
	return c
}

// Now returns the current round.
func (c *Logical) Now() int64 {
	return c.round.Load()
}

// Tick advances the clock by one round and returns the new value.
func (c *Logical) Tick() int64 {
	return c.round.Add(1)
}

// Witness moves the clock forward to ts if ts is ahead of it.
// Returns the resulting round.
func (c *Logical) Witness(ts int64) int64 {
	for {
		cur := c.round.Load()
		if ts <= cur {
			return cur
		}
		if c.round.CompareAndSwap(cur, ts) {
			return ts
		}
	}
}

// String returns a base 10 representation of the current round.
func (c *Logical) String() string {
	return strconv.FormatInt(c.Now(), 10)
}
