package sim

import (
	"fmt"
	"sort"
	"sync"

	"sanders/internal/mutex"
)

// Entry is one admission to the critical section.
type Entry struct {
	Node  mutex.ID
	Round int64
}

// Violation records a node entering while others were inside.
type Violation struct {
	Node    mutex.ID
	Holders []mutex.ID
	Round   int64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s entered at round %d while %v held the critical section", v.Node, v.Round, v.Holders)
}

// Monitor observes enter and exit events from any number of engines.
// Safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	inside     map[mutex.ID]bool
	entries    []Entry
	violations []Violation
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{inside: make(map[mutex.ID]bool)}
}

// Observe implements mutex.Observer.
func (m *Monitor) Observe(e mutex.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.Action {
	case mutex.ActionEnter:
		if len(m.inside) > 0 {
			m.violations = append(m.violations, Violation{
				Node:    e.Node,
				Holders: m.holders(),
				Round:   e.Round,
			})
		}
		m.inside[e.Node] = true
		m.entries = append(m.entries, Entry{Node: e.Node, Round: e.Round})
	case mutex.ActionExit:
		delete(m.inside, e.Node)
	}
}

// Entries returns every admission in the order observed.
func (m *Monitor) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Violations returns every overlapping entry.
func (m *Monitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Violation(nil), m.violations...)
}

// Admissions counts the entries of one node.
func (m *Monitor) Admissions(id mutex.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.entries {
		if e.Node == id {
			count++
		}
	}
	return count
}

// Inside returns the nodes currently in the critical section.
func (m *Monitor) Inside() []mutex.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders()
}

func (m *Monitor) holders() []mutex.ID {
	ids := make([]mutex.ID, 0, len(m.inside))
	for id := range m.inside {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
