// Package wire defines how protocol messages travel between nodes: every
// message is a structpb.Struct envelope carried by the sanders.Peer gRPC
// service.
package wire
