package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"sanders/internal/clock"
	"sanders/internal/mutex"
)

// RoundLength is the virtual duration of one round. Engine timers are
// rounded up to whole rounds.
const RoundLength = time.Millisecond

// Options configures a Cluster.
type Options struct {
	Members            []mutex.ID
	Provider           mutex.CoterieProvider
	Seed               int64
	SessionRounds      int     // rounds a node stays admitted, default 3
	RequestProbability float64 // chance per round that an idle node bids
	Observer           mutex.Observer
}

type linkKey struct {
	from, to mutex.ID
}

type timer struct {
	at int64
	fn func()
}

// Cluster is a set of engines wired through an in-memory network.
// Not safe for concurrent use.
type Cluster struct {
	rng     *rand.Rand
	clock   *clock.Logical
	prob    float64
	order   []mutex.ID
	engines map[mutex.ID]*mutex.Engine
	monitor *Monitor

	keys   []linkKey // links in creation order, for deterministic selection
	queues map[linkKey][]mutex.Message
	timers []timer
	errs   []error
}

// NewCluster builds one engine per member.
func NewCluster(opts Options) (*Cluster, error) {
	if len(opts.Members) == 0 {
		return nil, errors.New("cluster needs at least one member")
	}
	if opts.Provider == nil {
		return nil, errors.New("cluster needs a coterie provider")
	}
	session := opts.SessionRounds
	if session <= 0 {
		session = 3
	}

	c := &Cluster{
		rng:     rand.New(rand.NewSource(opts.Seed)),
		clock:   clock.New(0),
		prob:    opts.RequestProbability,
		engines: make(map[mutex.ID]*mutex.Engine, len(opts.Members)),
		monitor: NewMonitor(),
		queues:  make(map[linkKey][]mutex.Message),
	}

	var observer mutex.Observer = c.monitor
	if opts.Observer != nil {
		extra := opts.Observer
		observer = mutex.ObserverFunc(func(e mutex.Event) {
			c.monitor.Observe(e)
			extra.Observe(e)
		})
	}

	for _, id := range opts.Members {
		if _, dup := c.engines[id]; dup {
			return nil, fmt.Errorf("duplicate member %s", id)
		}
		engine, err := mutex.NewEngine(mutex.Config{
			Self:            id,
			Coterie:         opts.Provider.CoterieOf(id),
			SessionDuration: time.Duration(session) * RoundLength,
			Transport:       endpoint{c: c, self: id},
			Timers:          c,
			Clock:           c.clock,
			Observer:        observer,
		})
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", id, err)
		}
		c.engines[id] = engine
		c.order = append(c.order, id)
	}
	return c, nil
}

// Engine returns the engine of a member.
func (c *Cluster) Engine(id mutex.ID) *mutex.Engine {
	return c.engines[id]
}

// Monitor returns the cluster's critical-section monitor.
func (c *Cluster) Monitor() *Monitor {
	return c.monitor
}

// Round returns the current round.
func (c *Cluster) Round() int64 {
	return c.clock.Now()
}

// SetRequestProbability changes how often idle nodes bid.
func (c *Cluster) SetRequestProbability(p float64) {
	c.prob = p
}

// Request makes a node bid at the current round.
func (c *Cluster) Request(id mutex.ID) error {
	engine, ok := c.engines[id]
	if !ok {
		return fmt.Errorf("unknown member %s", id)
	}
	return engine.RequestEntry()
}

// InFlight counts undelivered messages.
func (c *Cluster) InFlight() int {
	total := 0
	for _, q := range c.queues {
		total += len(q)
	}
	return total
}

// Quiescent reports whether the network is empty, no timer is pending and
// no node holds or awaits the critical section.
func (c *Cluster) Quiescent() bool {
	if c.InFlight() > 0 || len(c.timers) > 0 {
		return false
	}
	for _, e := range c.engines {
		st := e.State()
		if st.InCriticalSection || st.AwaitingEntry || st.HasVoted || st.Pending > 0 {
			return false
		}
	}
	return true
}

// Step runs one round: deliver the messages in flight at its start,
// fire due timers, let idle nodes bid, then advance the clock.
func (c *Cluster) Step() error {
	for n := c.InFlight(); n > 0; n-- {
		c.deliverOne()
	}
	c.fireTimers()
	c.bid()
	c.clock.Tick()

	if len(c.errs) > 0 {
		err := errors.Join(c.errs...)
		c.errs = nil
		return err
	}
	return nil
}

// Run runs the given number of rounds, stopping at the first error.
func (c *Cluster) Run(rounds int) error {
	for i := 0; i < rounds; i++ {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil steps until done returns true or maxRounds elapse. It reports
// whether done was reached.
func (c *Cluster) RunUntil(done func() bool, maxRounds int) (bool, error) {
	for i := 0; i < maxRounds; i++ {
		if done() {
			return true, nil
		}
		if err := c.Step(); err != nil {
			return false, err
		}
	}
	return done(), nil
}

// ScheduleAfter implements mutex.TimerService on virtual rounds.
func (c *Cluster) ScheduleAfter(d time.Duration, fn func()) {
	rounds := int64((d + RoundLength - 1) / RoundLength)
	if rounds < 1 {
		rounds = 1
	}
	c.timers = append(c.timers, timer{at: c.clock.Now() + rounds, fn: fn})
}

func (c *Cluster) deliverOne() {
	var ready []linkKey
	for _, k := range c.keys {
		if len(c.queues[k]) > 0 {
			ready = append(ready, k)
		}
	}
	if len(ready) == 0 {
		return
	}
	k := ready[c.rng.Intn(len(ready))]
	msg := c.queues[k][0]
	c.queues[k] = c.queues[k][1:]

	if err := c.engines[k.to].Deliver(k.from, msg); err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s -> %s %s: %w", k.from, k.to, msg.Kind(), err))
	}
}

func (c *Cluster) fireTimers() {
	now := c.clock.Now()
	var due []timer
	kept := c.timers[:0]
	for _, t := range c.timers {
		if t.at <= now {
			due = append(due, t)
		} else {
			kept = append(kept, t)
		}
	}
	c.timers = kept
	for _, t := range due {
		t.fn()
	}
}

func (c *Cluster) bid() {
	if c.prob <= 0 {
		return
	}
	for _, id := range c.order {
		e := c.engines[id]
		if e.IsInCriticalSection() || e.IsAwaitingEntry() {
			continue
		}
		if c.rng.Float64() < c.prob {
			if err := e.RequestEntry(); err != nil {
				c.errs = append(c.errs, fmt.Errorf("%s bid: %w", id, err))
			}
		}
	}
}

func (c *Cluster) enqueue(from, to mutex.ID, msg mutex.Message) {
	if _, ok := c.engines[to]; !ok {
		c.errs = append(c.errs, fmt.Errorf("%s sent %s to unknown member %s", from, msg.Kind(), to))
		return
	}
	k := linkKey{from: from, to: to}
	if _, ok := c.queues[k]; !ok {
		c.keys = append(c.keys, k)
	}
	c.queues[k] = append(c.queues[k], msg)
}

// endpoint is one member's view of the network.
type endpoint struct {
	c    *Cluster
	self mutex.ID
}

func (e endpoint) Unicast(to mutex.ID, msg mutex.Message) {
	e.c.enqueue(e.self, to, msg)
}

func (e endpoint) Broadcast(to []mutex.ID, msg mutex.Message) {
	for _, id := range to {
		e.c.enqueue(e.self, id, msg)
	}
}
