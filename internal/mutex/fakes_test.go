package mutex

import "time"

type sent struct {
	to  ID
	msg Message
}

type recordingTransport struct {
	sent []sent
}

func (t *recordingTransport) Unicast(to ID, msg Message) {
	t.sent = append(t.sent, sent{to: to, msg: msg})
}

func (t *recordingTransport) Broadcast(to []ID, msg Message) {
	for _, id := range to {
		t.Unicast(id, msg)
	}
}

func (t *recordingTransport) count(kind Kind) int {
	n := 0
	for _, s := range t.sent {
		if s.msg.Kind() == kind {
			n++
		}
	}
	return n
}

func (t *recordingTransport) last() sent {
	return t.sent[len(t.sent)-1]
}

func (t *recordingTransport) reset() {
	t.sent = nil
}

type manualTimers struct {
	delays []time.Duration
	fns    []func()
}

func (m *manualTimers) ScheduleAfter(d time.Duration, fn func()) {
	m.delays = append(m.delays, d)
	m.fns = append(m.fns, fn)
}

func (m *manualTimers) fire(i int) {
	m.fns[i]()
}

type fixedClock struct {
	now int64
}

func (c *fixedClock) Now() int64 { return c.now }

type harness struct {
	engine    *Engine
	transport *recordingTransport
	timers    *manualTimers
	clock     *fixedClock
	events    []Event
	entered   int
	exited    int
}

func newHarness(self ID, coterie ...ID) *harness {
	h := &harness{
		transport: &recordingTransport{},
		timers:    &manualTimers{},
		clock:     &fixedClock{},
	}
	e, err := NewEngine(Config{
		Self:            self,
		Coterie:         coterie,
		SessionDuration: time.Second,
		Transport:       h.transport,
		Timers:          h.timers,
		Clock:           h.clock,
		Observer:        ObserverFunc(func(ev Event) { h.events = append(h.events, ev) }),
		OnEnter:         func(int64) { h.entered++ },
		OnExit:          func() { h.exited++ },
	})
	if err != nil {
		panic(err)
	}
	h.engine = e
	return h
}
