package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	emptypb "google.golang.org/protobuf/types/known/emptypb"

	"sanders/internal/clock"
	"sanders/internal/config"
	"sanders/internal/mutex"
	"sanders/internal/quorum"
	"sanders/internal/wire"
)

const (
	// inboxSize bounds how many events may wait for the loop.
	inboxSize = 1024
	// enteredSize is the buffer of the Entered channel.
	enteredSize = 16
)

// ErrStopped is returned by calls made after Stop.
var ErrStopped = errors.New("node stopped")

// Node represents a single node in the distributed system. It owns one
// protocol engine and serializes every call into it on a single goroutine.
type Node struct {
	cfg        config.Config
	id         mutex.ID
	addrs      map[mutex.ID]string // peers only
	coterie    []mutex.ID
	clock      *clock.Logical
	engine     *mutex.Engine
	transport  *peerTransport
	clientMgr  *ClientManager
	serverMu   sync.Mutex
	grpcServer *grpc.Server
	observer   mutex.Observer
	rng        *rand.Rand
	seen       *dedup
	duplicates atomic.Uint64

	inbox    chan func()
	entered  chan int64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Node.
type Option func(*Node)

// WithObserver routes engine events to o instead of the standard logger.
func WithObserver(o mutex.Observer) Option {
	return func(n *Node) { n.observer = o }
}

// WithSeed fixes the random source used by the round driver.
func WithSeed(seed int64) Option {
	return func(n *Node) { n.rng = rand.New(rand.NewSource(seed)) }
}

// NewNode creates a new node instance and starts its event loop.
// provider decides which members vote on this node's bids.
func NewNode(cfg config.Config, provider mutex.CoterieProvider, opts ...Option) (*Node, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	self := mutex.ID(cfg.NodeID)
	addrs := make(map[mutex.ID]string)
	for _, m := range cfg.Members() {
		if mutex.ID(m.ID) != self {
			addrs[mutex.ID(m.ID)] = m.Addr
		}
	}

	coterie := provider.CoterieOf(self)
	for _, id := range coterie {
		if _, ok := cfg.AddrOf(id); !ok {
			return nil, fmt.Errorf("coterie member %s has no address", id)
		}
	}

	n := &Node{
		cfg:       cfg,
		id:        self,
		addrs:     addrs,
		coterie:   coterie,
		clock:     clock.New(0),
		clientMgr: NewClientManager(),
		observer:  mutex.LogObserver{Logger: log.Default()},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		seen:      newDedup(defaultDedupWindow),
		inbox:     make(chan func(), inboxSize),
		entered:   make(chan int64, enteredSize),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.transport = newPeerTransport(self, addrs, n.clientMgr, cfg.SendTimeout)

	engine, err := mutex.NewEngine(mutex.Config{
		Self:            self,
		Coterie:         coterie,
		SessionDuration: cfg.SessionDuration,
		Transport:       n.transport,
		Timers:          n,
		Clock:           n.clock,
		Observer:        n.observer,
		OnEnter:         n.onEnter,
	})
	if err != nil {
		n.transport.close()
		return nil, err
	}
	n.engine = engine

	n.wg.Add(1)
	go n.loop()

	return n, nil
}

// ID returns the node's identity.
func (n *Node) ID() mutex.ID {
	return n.id
}

// Coterie returns the node's voters.
func (n *Node) Coterie() []mutex.ID {
	return append([]mutex.ID(nil), n.coterie...)
}

// Start listens on the configured address and serves until Stop.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	return n.Serve(lis)
}

// Serve serves the peer service on lis until Stop.
func (n *Node) Serve(lis net.Listener) error {
	srv := grpc.NewServer()
	wire.RegisterPeerServer(srv, NewServer(n))

	// Enable gRPC reflection for grpcurl
	reflection.Register(srv)

	n.serverMu.Lock()
	select {
	case <-n.stopCh:
		n.serverMu.Unlock()
		lis.Close()
		return ErrStopped
	default:
	}
	n.grpcServer = srv
	n.serverMu.Unlock()

	log.Printf("[%s] Starting node on %s (coterie %v)", n.id, lis.Addr(), n.coterie)

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the node.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		log.Printf("[%s] Stopping node", n.id)
		n.serverMu.Lock()
		close(n.stopCh)
		srv := n.grpcServer
		n.serverMu.Unlock()

		if srv != nil {
			srv.GracefulStop()
		}
		n.transport.close()
		n.clientMgr.Close()
		n.wg.Wait()
	})
}

// Entered delivers the round of every admission to the critical section.
// Admissions are dropped when nobody drains the channel.
func (n *Node) Entered() <-chan int64 {
	return n.entered
}

// RequestEntry bids for the critical section.
func (n *Node) RequestEntry(ctx context.Context) error {
	return n.do(ctx, n.engine.RequestEntry)
}

// ExitEntry leaves the critical section before the session expires.
func (n *Node) ExitEntry(ctx context.Context) error {
	return n.do(ctx, n.engine.ExitEntry)
}

// Status returns a snapshot of the node's protocol state.
func (n *Node) Status(ctx context.Context) (wire.Status, error) {
	var st wire.Status
	err := n.do(ctx, func() error {
		stats := n.engine.Stats()
		st = wire.Status{
			Node:              string(n.id),
			Round:             n.clock.Now(),
			InCriticalSection: n.engine.IsInCriticalSection(),
			AwaitingEntry:     n.engine.IsAwaitingEntry(),
			Pending:           n.engine.PendingCount(),
			Admissions:        stats.Admissions,
			Stale:             stats.Stale,
			Duplicates:        n.duplicates.Load(),
		}
		return nil
	})
	return st, err
}

// WaitReady blocks until every remote coterie member answers a ping.
func (n *Node) WaitReady(ctx context.Context) error {
	remote := make([]string, 0, len(n.coterie))
	for _, id := range n.coterie {
		if id != n.id {
			remote = append(remote, string(id))
		}
	}
	if len(remote) == 0 {
		return nil
	}

	ping := func(ctx context.Context, member string) error {
		client, err := n.clientMgr.GetClient(n.addrs[mutex.ID(member)])
		if err != nil {
			return err
		}
		_, err = client.Ping(ctx, &emptypb.Empty{})
		return err
	}

	wait := backoff{MaxWait: time.Second}
	err := wait.Retry(ctx, func() error {
		res := quorum.Gather(ctx, remote, len(remote), n.cfg.SendTimeout, ping)
		if !res.Success {
			return errors.New(res.ErrorMessage)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("coterie not ready: %w", err)
	}
	log.Printf("[%s] Coterie ready: %v", n.id, remote)
	return nil
}

// Run drives rounds until ctx is done: every round the clock advances and
// an idle node bids with the configured probability.
func (n *Node) Run(ctx context.Context) error {
	if err := n.WaitReady(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(n.cfg.RoundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stopCh:
			return ErrStopped
		case <-ticker.C:
			if err := n.post(ctx, n.round); err != nil {
				return err
			}
		}
	}
}

// ScheduleAfter implements mutex.TimerService. fn runs on the event loop.
func (n *Node) ScheduleAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		if err := n.post(context.Background(), fn); err != nil {
			log.Printf("[%s] Timer dropped: %v", n.id, err)
		}
	})
}

func (n *Node) round() {
	n.clock.Tick()
	if n.cfg.RequestProbability <= 0 {
		return
	}
	if n.engine.IsInCriticalSection() || n.engine.IsAwaitingEntry() {
		return
	}
	if n.rng.Float64() < n.cfg.RequestProbability {
		if err := n.engine.RequestEntry(); err != nil {
			log.Printf("[%s] Bid failed: %v", n.id, err)
		}
	}
}

func (n *Node) onEnter(round int64) {
	log.Printf("[%s] Entered critical section (round %d)", n.id, round)
	select {
	case n.entered <- round:
	default:
	}
}

// receive queues an inbound envelope for the event loop. Envelopes already
// seen from the same sender are dropped. Once recorded, an envelope is only
// lost if the node stops, so the wait is not bounded by the caller.
func (n *Node) receive(env wire.Envelope) error {
	if !n.seen.firstSeen(env.From, env.ID) {
		n.duplicates.Add(1)
		log.Printf("[%s] Dropping duplicate %s %s from %s", n.id, env.Msg.Kind(), env.ID, env.From)
		return nil
	}
	if env.Msg.Kind() == mutex.KindRequest {
		n.clock.Witness(mutex.Timestamp(env.Msg))
	}
	return n.post(context.Background(), func() {
		if err := n.engine.Deliver(env.From, env.Msg); err != nil {
			log.Printf("[%s] Failed to handle %s from %s: %v", n.id, env.Msg.Kind(), env.From, err)
		}
	})
}

// do runs fn on the event loop and waits for its result.
func (n *Node) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	if err := n.post(ctx, func() { errCh <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return ErrStopped
	}
}

func (n *Node) post(ctx context.Context, fn func()) error {
	select {
	case <-n.stopCh:
		return ErrStopped
	default:
	}
	select {
	case n.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return ErrStopped
	}
}

func (n *Node) loop() {
	defer n.wg.Done()
	for {
		select {
		case fn := <-n.inbox:
			fn()
		case <-n.stopCh:
			return
		}
	}
}
