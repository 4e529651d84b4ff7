package config

import (
	"fmt"
	"strings"
	"time"

	"sanders/internal/coterie"
	"sanders/internal/mutex"
)

const (
	// DefaultRoundInterval is the wall-clock length of one logical round.
	DefaultRoundInterval = 100 * time.Millisecond
	// DefaultSendTimeout bounds a single peer delivery RPC.
	DefaultSendTimeout = 2 * time.Second
	// DefaultRequestProbability is the chance per round that an idle node bids.
	DefaultRequestProbability = 0.05
)

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string
	Addr string
}

// Config holds the node configuration.
type Config struct {
	NodeID             string
	ListenAddr         string
	Peers              []Peer
	Coterie            coterie.Kind
	SessionDuration    time.Duration
	RoundInterval      time.Duration
	SendTimeout        time.Duration
	RequestProbability float64 // 0 disables automatic bids
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// WithDefaults returns a copy of c with zero durations and kinds filled in.
func (c Config) WithDefaults() Config {
	if c.Coterie == "" {
		c.Coterie = coterie.KindFull
	}
	if c.SessionDuration <= 0 {
		c.SessionDuration = mutex.DefaultSessionDuration
	}
	if c.RoundInterval <= 0 {
		c.RoundInterval = DefaultRoundInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.RequestProbability < 0 || c.RequestProbability > 1 {
		return fmt.Errorf("request probability %v out of range [0,1]", c.RequestProbability)
	}
	seen := make(map[string]string)
	for _, p := range c.Peers {
		if addr, ok := seen[p.ID]; ok && addr != p.Addr {
			return fmt.Errorf("peer %s listed with two addresses: %s, %s", p.ID, addr, p.Addr)
		}
		seen[p.ID] = p.Addr
	}
	return nil
}

// Members converts config peers + self into the cluster member list.
// Includes self; duplicates are dropped.
func (c *Config) Members() []Peer {
	members := make([]Peer, 0, len(c.Peers)+1)
	seen := make(map[string]bool, len(c.Peers)+1)

	// Add self
	members = append(members, Peer{
		ID:   c.NodeID,
		Addr: c.ListenAddr,
	})
	seen[c.NodeID] = true

	for _, peer := range c.Peers {
		if seen[peer.ID] {
			continue
		}
		seen[peer.ID] = true
		members = append(members, peer)
	}

	return members
}

// MemberIDs returns the identities of Members.
func (c *Config) MemberIDs() []mutex.ID {
	members := c.Members()
	ids := make([]mutex.ID, 0, len(members))
	for _, m := range members {
		ids = append(ids, mutex.ID(m.ID))
	}
	return ids
}

// AddrOf returns the address of a member.
func (c *Config) AddrOf(id mutex.ID) (string, bool) {
	for _, m := range c.Members() {
		if m.ID == string(id) {
			return m.Addr, true
		}
	}
	return "", false
}
