package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sanders/internal/config"
	"sanders/internal/coterie"
	"sanders/internal/mutex"
	"sanders/internal/node"
)

func main() {
	var (
		nodeID  = flag.String("node-id", "", "unique identity of this node")
		listen  = flag.String("listen", ":7000", "address to serve the peer service on")
		peers   = flag.String("peers", "", "cluster members as id=addr,id=addr")
		kind    = flag.String("coterie", string(coterie.KindFull), "coterie layout: full or grid")
		session = flag.Duration("session", mutex.DefaultSessionDuration, "time spent in the critical section")
		round   = flag.Duration("round", config.DefaultRoundInterval, "length of one logical round")
		timeout = flag.Duration("send-timeout", config.DefaultSendTimeout, "timeout of one peer delivery")
		prob    = flag.Float64("request-prob", config.DefaultRequestProbability, "chance per round that an idle node bids")
	)
	flag.Parse()

	peerList, err := config.ParsePeers(*peers)
	if err != nil {
		log.Fatalf("Invalid --peers: %v", err)
	}

	cfg := config.Config{
		NodeID:             *nodeID,
		ListenAddr:         *listen,
		Peers:              peerList,
		Coterie:            coterie.Kind(*kind),
		SessionDuration:    *session,
		RoundInterval:      *round,
		SendTimeout:        *timeout,
		RequestProbability: *prob,
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	members := cfg.MemberIDs()
	provider, err := coterie.New(cfg.Coterie, members)
	if err != nil {
		log.Fatalf("Failed to build coterie: %v", err)
	}
	if err := coterie.Validate(provider, members); err != nil {
		log.Fatalf("Unsafe coterie: %v", err)
	}

	n, err := node.NewNode(cfg, provider)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	go func() {
		if err := n.Start(); err != nil {
			log.Fatalf("[%s] Server error: %v", cfg.NodeID, err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := n.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[%s] Round driver stopped: %v", cfg.NodeID, err)
		}
	}()

	go func() {
		for round := range n.Entered() {
			log.Printf("[%s] Holding critical section for %v (round %d)", cfg.NodeID, cfg.SessionDuration, round)
		}
	}()

	<-ctx.Done()
	log.Printf("[%s] Shutting down...", cfg.NodeID)

	done := make(chan struct{})
	go func() {
		n.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Printf("[%s] Shutdown timed out", cfg.NodeID)
	}
}
