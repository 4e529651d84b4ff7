package node

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"sanders/internal/wire"
)

// ClientManager manages gRPC clients to peer nodes.
type ClientManager struct {
	mu      sync.RWMutex
	conns   map[string]*grpc.ClientConn
	clients map[string]wire.PeerClient
}

// NewClientManager creates a new client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		conns:   make(map[string]*grpc.ClientConn),
		clients: make(map[string]wire.PeerClient),
	}
}

// GetClient returns a peer client for the given node address.
// Creates a new connection if one doesn't exist. Connections are lazy, so
// an unreachable peer surfaces as codes.Unavailable on the first call.
func (cm *ClientManager) GetClient(addr string) (wire.PeerClient, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client = wire.NewPeerClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, conn := range cm.conns {
		conn.Close()
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]wire.PeerClient)
}
