package node

import (
	"sync"

	"sanders/internal/mutex"
)

// defaultDedupWindow is how many recent envelope ids are kept per sender.
const defaultDedupWindow = 4096

// dedup remembers the most recent envelope ids of each sender so a retried
// envelope is handed to the engine at most once.
type dedup struct {
	mu      sync.Mutex
	window  int
	senders map[mutex.ID]*seenIDs
}

// seenIDs is a fixed-size FIFO of ids with a membership index.
type seenIDs struct {
	ids   map[string]struct{}
	order []string
	next  int
}

func newDedup(window int) *dedup {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &dedup{
		window:  window,
		senders: make(map[mutex.ID]*seenIDs),
	}
}

// firstSeen records id for from and reports whether it was new.
func (d *dedup) firstSeen(from mutex.ID, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.senders[from]
	if !ok {
		s = &seenIDs{ids: make(map[string]struct{}, d.window)}
		d.senders[from] = s
	}
	if _, dup := s.ids[id]; dup {
		return false
	}

	if len(s.order) < d.window {
		s.order = append(s.order, id)
	} else {
		delete(s.ids, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % d.window
	}
	s.ids[id] = struct{}{}
	return true
}
