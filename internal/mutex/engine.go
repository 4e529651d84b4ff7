package mutex

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultSessionDuration is how long an admitted node stays in its
	// critical section before the expiry timer exits it.
	DefaultSessionDuration = 2 * time.Second
)

// Config configures an Engine.
type Config struct {
	Self            ID
	Coterie         []ID // voters whose Yes is required, usually including Self
	SessionDuration time.Duration
	Transport       Transport
	Timers          TimerService
	Clock           Clock
	Observer        Observer // optional

	// OnEnter and OnExit are optional hooks run on admission and exit.
	// OnExit runs before the Release broadcast.
	OnEnter func(round int64)
	OnExit  func()
}

// State is a read-only snapshot of an engine's bookkeeping.
type State struct {
	InCriticalSection  bool
	AwaitingEntry      bool
	HasVoted           bool
	Candidate          ID
	CandidateTimestamp int64
	Inquired           bool
	MyTimestamp        int64
	YesVotes           int
	Pending            int
}

type envelope struct {
	from ID
	msg  Message
}

// Engine is the per-node protocol state machine.
type Engine struct {
	self      ID
	coterie   []ID
	remote    []ID // coterie without self
	selfVoter bool
	session   time.Duration
	transport Transport
	timers    TimerService
	clock     Clock
	observer  Observer
	onEnter   func(int64)
	onExit    func()

	// requester side
	inCS     bool
	awaiting bool
	myTS     int64
	yesVotes int
	epoch    uint64 // admission counter, guards the expiry timer

	// voter side
	hasVoted    bool
	candidate   ID
	candidateTS int64
	inquired    bool
	deferred    DeferredQueue

	local    []envelope // self-addressed messages awaiting dispatch
	draining bool
	stats    Stats
}

// NewEngine creates an engine in the idle, unvoted state.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Self == "" {
		return nil, errors.New("engine requires a node id")
	}
	if cfg.Transport == nil || cfg.Timers == nil || cfg.Clock == nil {
		return nil, errors.New("engine requires transport, timers and clock")
	}

	seen := make(map[ID]bool, len(cfg.Coterie))
	coterie := make([]ID, 0, len(cfg.Coterie))
	for _, id := range cfg.Coterie {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		coterie = append(coterie, id)
	}
	if len(coterie) == 0 {
		return nil, fmt.Errorf("node %s: coterie cannot be empty", cfg.Self)
	}

	remote := make([]ID, 0, len(coterie))
	for _, id := range coterie {
		if id != cfg.Self {
			remote = append(remote, id)
		}
	}

	session := cfg.SessionDuration
	if session <= 0 {
		session = DefaultSessionDuration
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Engine{
		self:      cfg.Self,
		coterie:   coterie,
		remote:    remote,
		selfVoter: seen[cfg.Self],
		session:   session,
		transport: cfg.Transport,
		timers:    cfg.Timers,
		clock:     cfg.Clock,
		observer:  observer,
		onEnter:   cfg.OnEnter,
		onExit:    cfg.OnExit,
	}, nil
}

// RequestEntry starts a bid for the critical section by sending Request to
// every coterie member. Admission is signaled later through OnEnter.
func (e *Engine) RequestEntry() error {
	if e.awaiting || e.inCS {
		return ErrDuplicateEntryRequest
	}
	e.awaiting = true
	e.myTS = e.clock.Now()
	e.yesVotes = 0
	e.emit(RoleRequester, ActionRequest, KindRequest, "", e.myTS)

	e.broadcast(RequestMsg{Timestamp: e.myTS})
	return e.drain()
}

// ExitEntry leaves the critical section and releases every coterie vote.
func (e *Engine) ExitEntry() error {
	if !e.inCS {
		return ErrNotInCriticalSection
	}
	e.exit()
	return e.drain()
}

// Deliver handles a message received from another node.
func (e *Engine) Deliver(from ID, msg Message) error {
	if err := e.dispatch(from, msg); err != nil {
		return err
	}
	return e.drain()
}

// expire is the session timer callback for admission epoch.
func (e *Engine) expire(epoch uint64) {
	if !e.inCS || epoch != e.epoch {
		return
	}
	e.exit()
	if err := e.drain(); err != nil {
		panic(fmt.Sprintf("mutex: session expiry on %s: %v", e.self, err))
	}
}

func (e *Engine) dispatch(from ID, msg Message) error {
	switch m := msg.(type) {
	case RequestMsg:
		e.onRequest(from, m)
	case YesMsg:
		e.onYes(from)
	case InquireMsg:
		e.onInquire(from, m)
	case RelinquishMsg:
		return e.onRelinquish(from)
	case ReleaseMsg:
		return e.onRelease(from)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return nil
}

// drain dispatches self-addressed messages queued by the current operation.
func (e *Engine) drain() error {
	if e.draining {
		return nil
	}
	e.draining = true
	defer func() { e.draining = false }()

	for len(e.local) > 0 {
		env := e.local[0]
		e.local = e.local[1:]
		if err := e.dispatch(env.from, env.msg); err != nil {
			e.local = nil
			return err
		}
	}
	return nil
}

// voter side

func (e *Engine) onRequest(from ID, m RequestMsg) {
	req := Request{Timestamp: m.Timestamp, Requester: from}
	if !e.hasVoted {
		e.grant(req)
		return
	}

	e.deferred.Insert(req)
	e.emit(RoleVoter, ActionDefer, KindRequest, from, m.Timestamp)

	current := Request{Timestamp: e.candidateTS, Requester: e.candidate}
	if req.Less(current) && !e.inquired {
		e.inquired = true
		e.stats.Inquires++
		e.emit(RoleVoter, ActionInquire, KindInquire, e.candidate, e.candidateTS)
		e.send(e.candidate, InquireMsg{Timestamp: e.candidateTS})
	}
}

func (e *Engine) onRelinquish(from ID) error {
	if !e.hasVoted || !e.inquired || from != e.candidate {
		e.stale(RoleVoter, KindRelinquish, from, 0)
		return nil
	}

	e.deferred.Insert(Request{Timestamp: e.candidateTS, Requester: e.candidate})
	next, err := e.deferred.ExtractMin()
	if err != nil {
		return fmt.Errorf("rotate vote from %s: %w", from, err)
	}
	e.inquired = false
	e.emit(RoleVoter, ActionRotate, KindRelinquish, from, e.candidateTS)
	e.grant(next)
	return nil
}

func (e *Engine) onRelease(from ID) error {
	if !e.hasVoted || from != e.candidate {
		e.stale(RoleVoter, KindRelease, from, 0)
		return nil
	}

	e.inquired = false
	if e.deferred.IsEmpty() {
		e.hasVoted = false
		e.candidate = ""
		e.candidateTS = 0
		e.emit(RoleVoter, ActionUnvote, KindRelease, from, 0)
		return nil
	}

	next, err := e.deferred.ExtractMin()
	if err != nil {
		return fmt.Errorf("advance after release from %s: %w", from, err)
	}
	e.grant(next)
	return nil
}

func (e *Engine) grant(r Request) {
	e.hasVoted = true
	e.candidate = r.Requester
	e.candidateTS = r.Timestamp
	e.stats.Grants++
	e.emit(RoleVoter, ActionGrant, KindYes, r.Requester, r.Timestamp)
	e.send(r.Requester, YesMsg{})
}

// requester side

func (e *Engine) onYes(from ID) {
	if !e.awaiting {
		e.stale(RoleRequester, KindYes, from, 0)
		return
	}

	e.yesVotes++
	e.emit(RoleRequester, ActionCount, KindYes, from, e.myTS)
	if e.yesVotes == len(e.coterie) {
		e.admit()
	}
}

// onInquire gives a vote back while the bid is still pending. The returned
// vote is removed from this node's own tally; the voter re-queues the bid and
// grants it again later.
func (e *Engine) onInquire(from ID, m InquireMsg) {
	if !e.awaiting || e.myTS != m.Timestamp {
		e.stale(RoleRequester, KindInquire, from, m.Timestamp)
		return
	}

	e.yesVotes--
	e.emit(RoleRequester, ActionRelinquish, KindRelinquish, from, e.myTS)
	e.send(from, RelinquishMsg{})
}

func (e *Engine) admit() {
	e.inCS = true
	e.awaiting = false
	e.epoch++
	e.stats.Admissions++
	e.emit(RoleRequester, ActionEnter, KindYes, "", e.myTS)

	epoch := e.epoch
	e.timers.ScheduleAfter(e.session, func() { e.expire(epoch) })

	if e.onEnter != nil {
		e.onEnter(e.myTS)
	}
}

func (e *Engine) exit() {
	e.inCS = false
	e.yesVotes = 0
	e.stats.Exits++
	e.emit(RoleRequester, ActionExit, KindRelease, "", e.myTS)

	if e.onExit != nil {
		e.onExit()
	}
	e.broadcast(ReleaseMsg{})
}

// delivery

func (e *Engine) send(to ID, msg Message) {
	if to == e.self {
		e.local = append(e.local, envelope{from: e.self, msg: msg})
		return
	}
	e.transport.Unicast(to, msg)
}

func (e *Engine) broadcast(msg Message) {
	if len(e.remote) > 0 {
		e.transport.Broadcast(e.remote, msg)
	}
	if e.selfVoter {
		e.local = append(e.local, envelope{from: e.self, msg: msg})
	}
}

func (e *Engine) stale(role Role, kind Kind, from ID, round int64) {
	e.stats.Stale++
	e.emit(role, ActionStale, kind, from, round)
}

func (e *Engine) emit(role Role, action Action, kind Kind, peer ID, round int64) {
	e.observer.Observe(Event{
		Node:   e.self,
		Role:   role,
		Action: action,
		Kind:   kind,
		Peer:   peer,
		Round:  round,
	})
}

// observers

// ID returns the node's identity.
func (e *Engine) ID() ID {
	return e.self
}

// Coterie returns a copy of the node's coterie.
func (e *Engine) Coterie() []ID {
	return append([]ID(nil), e.coterie...)
}

// IsInCriticalSection reports whether the node is admitted.
func (e *Engine) IsInCriticalSection() bool {
	return e.inCS
}

// IsAwaitingEntry reports whether a bid is outstanding.
func (e *Engine) IsAwaitingEntry() bool {
	return e.awaiting
}

// PendingCount returns the number of deferred requests.
func (e *Engine) PendingCount() int {
	return e.deferred.Len()
}

// State returns a snapshot of the engine's bookkeeping.
func (e *Engine) State() State {
	return State{
		InCriticalSection:  e.inCS,
		AwaitingEntry:      e.awaiting,
		HasVoted:           e.hasVoted,
		Candidate:          e.candidate,
		CandidateTimestamp: e.candidateTS,
		Inquired:           e.inquired,
		MyTimestamp:        e.myTS,
		YesVotes:           e.yesVotes,
		Pending:            e.deferred.Len(),
	}
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return e.stats
}
