package node

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	structpb "google.golang.org/protobuf/types/known/structpb"

	"sanders/internal/mutex"
	"sanders/internal/wire"
)

// maxRetryWait caps the delay between delivery attempts.
const maxRetryWait = 500 * time.Millisecond

// peerTransport implements mutex.Transport over gRPC. Each peer gets its own
// link goroutine, so messages to one peer arrive in the order they were sent.
type peerTransport struct {
	self    mutex.ID
	addrs   map[mutex.ID]string
	clients *ClientManager
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	links map[mutex.ID]*link
}

// link is an unbounded FIFO of encoded envelopes bound for one peer.
type link struct {
	peer   mutex.ID
	addr   string
	mu     sync.Mutex
	queue  []*structpb.Struct
	notify chan struct{}
}

func newPeerTransport(self mutex.ID, addrs map[mutex.ID]string, clients *ClientManager, timeout time.Duration) *peerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &peerTransport{
		self:    self,
		addrs:   addrs,
		clients: clients,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		links:   make(map[mutex.ID]*link),
	}
}

// Unicast implements mutex.Transport.
func (t *peerTransport) Unicast(to mutex.ID, msg mutex.Message) {
	payload, err := wire.Encode(t.self, msg)
	if err != nil {
		log.Printf("[%s] Failed to encode %s for %s: %v", t.self, msg.Kind(), to, err)
		return
	}
	l := t.link(to)
	if l == nil {
		log.Printf("[%s] No address for %s, dropping %s", t.self, to, msg.Kind())
		return
	}
	l.push(payload)
}

// Broadcast implements mutex.Transport.
func (t *peerTransport) Broadcast(to []mutex.ID, msg mutex.Message) {
	for _, id := range to {
		t.Unicast(id, msg)
	}
}

// close stops every link. Queued envelopes are dropped.
func (t *peerTransport) close() {
	t.cancel()
	t.wg.Wait()
}

func (t *peerTransport) link(to mutex.ID) *link {
	t.mu.Lock()
	defer t.mu.Unlock()

	if l, ok := t.links[to]; ok {
		return l
	}
	addr, ok := t.addrs[to]
	if !ok || t.ctx.Err() != nil {
		return nil
	}
	l := &link{peer: to, addr: addr, notify: make(chan struct{}, 1)}
	t.links[to] = l
	t.wg.Add(1)
	go t.run(l)
	return l
}

func (l *link) push(p *structpb.Struct) {
	l.mu.Lock()
	l.queue = append(l.queue, p)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *link) pop() (*structpb.Struct, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	p := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return p, true
}

func (t *peerTransport) run(l *link) {
	defer t.wg.Done()
	for {
		select {
		case <-l.notify:
		case <-t.ctx.Done():
			return
		}
		for {
			p, ok := l.pop()
			if !ok {
				break
			}
			t.deliver(l, p)
			if t.ctx.Err() != nil {
				return
			}
		}
	}
}

// deliver sends one envelope, retrying with the same id until the peer
// accepts it or the transport is closed. The receiver drops repeated ids, so
// a retry after a timed out call cannot be applied twice.
func (t *peerTransport) deliver(l *link, p *structpb.Struct) {
	kind := p.GetFields()["kind"].GetStringValue()
	ctx := t.ctx

	failures := 0
	retry := backoff{
		MaxWait: maxRetryWait,
		Report: func(err error) error {
			switch status.Code(err) {
			case codes.Unavailable, codes.DeadlineExceeded:
				failures++
				if failures == 1 {
					log.Printf("[%s] %s to %s failed, retrying: %v", t.self, kind, l.peer, err)
				}
				return nil
			}
			return err
		},
	}
	err := retry.Retry(ctx, func() error {
		client, err := t.clients.GetClient(l.addr)
		if err != nil {
			return err
		}
		callCtx, callCancel := context.WithTimeout(ctx, t.timeout)
		defer callCancel()
		_, err = client.Deliver(callCtx, p)
		return err
	})
	if err != nil && t.ctx.Err() == nil {
		log.Printf("[%s] Dropping %s to %s: %v", t.self, kind, l.peer, err)
	}
}
