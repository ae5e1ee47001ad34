// Package peerutil holds the data types shared across the discovery,
// registry, selector, transfer, and orchestrator packages: peer
// identity, transport endpoints, and the static peer/adjacency tables
// loaded once per run.
package peerutil

import "fmt"

// PeerID identifies a peer within a single run. The peer set is fixed;
// there is no dynamic membership.
type PeerID int

// Endpoint is a datagram transport address: host plus UDP port. The
// peer's stream (TCP) port is always datagram-port + 1000 — see
// StreamPort.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// StreamPort returns this endpoint's derived TCP port.
func (e Endpoint) StreamPort() int {
	return e.Port + 1000
}

// StreamAddr returns the host:port pair for the derived TCP listener.
func (e Endpoint) StreamAddr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.StreamPort())
}

// PeerSpec is the immutable, per-run configuration of one peer: its
// datagram endpoint and the byte rate it declares for outbound stream
// transfers.
type PeerSpec struct {
	ID           PeerID
	Endpoint     Endpoint
	DeclaredRate int
}

// FileMetadata is the sidecar description of a file a peer wants to
// search for: its name, chunk count, and the TTL a discovery flood for
// it should start with.
type FileMetadata struct {
	FileName     string
	TotalChunks  int
	InitialTTL   int
}
