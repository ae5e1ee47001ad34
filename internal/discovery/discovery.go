// Package discovery implements the DiscoveryService of spec §4.4: a
// UDP datagram server that floods DISCOVERY under a TTL budget,
// answers with RESPONSE when it holds chunks, and hands REQUEST
// datagrams off to the transfer layer for the actual push.
//
// Grounded on original_source/UDPServer.{h,cpp} and the teacher's
// acceptLoop/per-connection-goroutine idiom in
// pkg/transport/tcp/tcp_transport.go, generalized from TCP framing to
// raw UDP datagrams. The ≥1s inter-neighbor pacing uses
// golang.org/x/time/rate, following the pacing pattern the wider
// retrieval pack uses for throttled network loops (see DESIGN.md); the
// response-window timeout is a plain time.Sleep.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/p2p-swarm/p2p-transfer/internal/logger"
	"github.com/p2p-swarm/p2p-transfer/internal/monitor"
	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
	"github.com/p2p-swarm/p2p-transfer/internal/wire"
)

// ChunkPusher is the capability the discovery service holds to trigger
// an outbound stream transfer once a REQUEST datagram arrives. It is
// implemented by the transfer package; wiring it as a narrow
// capability (rather than a pointer back into a *transfer.Service)
// keeps the two services from holding live references to each other.
type ChunkPusher interface {
	PushChunks(ctx context.Context, dest peerutil.Endpoint, fileName string, chunkIDs []int) error
}

// LocalStore is the subset of the FileStore the discovery service
// needs: what chunks are held locally, for RESPONSE and for filtering
// incoming RESPONSE advertisements we don't need.
type LocalStore interface {
	AvailableChunks(fileName string) []int
	HasChunk(fileName string, chunkID int) bool
}

const (
	// ResponseWindow is the fixed interval during which RESPONSE
	// messages for a given file are absorbed into the registry.
	ResponseWindow = 10 * time.Second
	// InterNeighborDelay is the minimum pacing between successive
	// DISCOVERY forwards to distinct neighbors.
	InterNeighborDelay = time.Second
)

// Service is the DiscoveryService: one UDP socket, one goroutine per
// received datagram, and the ProcessingWindow gate of spec §3.
type Service struct {
	self peerutil.Endpoint
	conn *net.UDPConn

	store  LocalStore
	reg    *registry.Registry
	pusher ChunkPusher

	declaredRate int

	neighborsMu sync.Mutex
	neighbors   []peerutil.Endpoint

	windowMu sync.Mutex
	window   map[string]bool // fileName -> processing active
}

// New creates a discovery Service bound to self's datagram endpoint.
// Start actually opens the socket; New only wires dependencies.
func New(self peerutil.Endpoint, store LocalStore, reg *registry.Registry) *Service {
	return &Service{
		self:   self,
		store:  store,
		reg:    reg,
		window: make(map[string]bool),
	}
}

// SetChunkPusher wires the transfer layer's push capability. Must be
// called before REQUEST datagrams can be served.
func (s *Service) SetChunkPusher(p ChunkPusher) {
	s.pusher = p
}

// Start binds the UDP socket and launches the receive loop in the
// background. It returns once the socket is bound.
func (s *Service) Start() error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: s.self.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind discovery socket on %d: %w", s.self.Port, err)
	}
	s.conn = conn
	logger.Sugar.Infof("[DiscoveryService] listening on %s", s.self)

	go s.recvLoop()
	return nil
}

// Close releases the UDP socket.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Service) recvLoop() {
	buf := make([]byte, wire.ControlHeaderSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			logger.Sugar.Errorf("[DiscoveryService] recv error: %v", err)
			return
		}
		msg := string(buf[:n])

		// Each datagram is handled in its own goroutine so a slow or
		// malicious peer cannot block the receive loop (spec §9).
		go s.handleDatagram(msg, peerutil.Endpoint{Host: from.IP.String(), Port: from.Port})
	}
}

func (s *Service) handleDatagram(msg string, directSender peerutil.Endpoint) {
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "DISCOVERY":
		monitor.RecordDiscoveryReceived()
		s.handleDiscovery(fields, directSender)
	case "RESPONSE":
		s.handleResponse(fields, directSender)
	case "REQUEST":
		s.handleRequest(fields, directSender)
	default:
		logger.Sugar.Warnf("[DiscoveryService] unknown message type %q from %s", fields[0], directSender)
	}
}

func (s *Service) handleDiscovery(fields []string, directSender peerutil.Endpoint) {
	d, err := wire.ParseDiscovery(fields)
	if err != nil {
		logger.Sugar.Warnf("[DiscoveryService] malformed DISCOVERY from %s: %v", directSender, err)
		return
	}

	if d.Origin == s.self {
		// Loop suppression: we are the origin of this flood.
		return
	}

	logger.Sugar.Infof("[DISCOVERY_RECEIVED] file=%s ttl=%d from=%s origin=%s", d.FileName, d.TTL, directSender, d.Origin)

	s.sendResponse(d.FileName, d.Origin)

	if d.TTL > 0 {
		s.forwardDiscovery(d)
	}
}

func (s *Service) sendResponse(fileName string, origin peerutil.Endpoint) {
	available := s.store.AvailableChunks(fileName)
	if len(available) == 0 {
		return
	}

	msg := wire.BuildResponse(fileName, s.declaredRateFor(), available)
	if err := s.send(origin, msg); err != nil {
		logger.Sugar.Errorf("[DiscoveryService] failed to send RESPONSE to %s: %v", origin, err)
		return
	}
	logger.Sugar.Infof("[RESPONSE_SENT] file=%s to=%s chunks=%v", fileName, origin, available)
}

// declaredRate is set once after New, by runPeer in cmd/p2p-peer, via
// SetDeclaredRate; it is this peer's own advertised transfer rate.
func (s *Service) declaredRateFor() int {
	return s.declaredRate
}

// SetDeclaredRate records this peer's own declared transfer rate,
// sent in every RESPONSE.
func (s *Service) SetDeclaredRate(bytesPerSecond int) {
	s.declaredRate = bytesPerSecond
}

func (s *Service) forwardDiscovery(d wire.Discovery) {
	s.neighborsMu.Lock()
	neighbors := append([]peerutil.Endpoint(nil), s.neighbors...)
	s.neighborsMu.Unlock()

	if len(neighbors) == 0 {
		return
	}

	limiter := rate.NewLimiter(rate.Every(InterNeighborDelay), 1)
	forward := wire.Discovery{FileName: d.FileName, TotalChunks: d.TotalChunks, TTL: d.TTL - 1, Origin: d.Origin}
	msg := wire.BuildDiscovery(forward)

	for _, n := range neighbors {
		_ = limiter.Wait(context.Background())
		if err := s.send(n, msg); err != nil {
			logger.Sugar.Errorf("[DiscoveryService] failed to forward DISCOVERY to %s: %v", n, err)
			continue
		}
		monitor.RecordDiscoverySent()
		logger.Sugar.Infof("[DISCOVERY_SENT] file=%s ttl=%d to=%s", d.FileName, forward.TTL, n)
	}
}

func (s *Service) handleResponse(fields []string, directSender peerutil.Endpoint) {
	if len(fields) < 2 {
		return
	}
	fileName := fields[1]

	s.windowMu.Lock()
	active := s.window[fileName]
	s.windowMu.Unlock()

	if !active {
		logger.Sugar.Infof("[RESPONSE dropped: late] file=%s from=%s", fileName, directSender)
		return
	}

	resp, err := wire.ParseResponse(fields)
	if err != nil {
		logger.Sugar.Warnf("[DiscoveryService] malformed RESPONSE from %s: %v", directSender, err)
		return
	}

	var needed []int
	for _, id := range resp.ChunkIDs {
		if !s.store.HasChunk(resp.FileName, id) {
			needed = append(needed, id)
		}
	}
	if len(needed) == 0 {
		return
	}

	s.reg.Record(resp.FileName, needed, directSender, resp.DeclaredRate)
	logger.Sugar.Infof("[RESPONSE_RECEIVED] file=%s from=%s chunks=%v", resp.FileName, directSender, needed)
}

func (s *Service) handleRequest(fields []string, directSender peerutil.Endpoint) {
	req, err := wire.ParseRequest(fields)
	if err != nil {
		logger.Sugar.Warnf("[DiscoveryService] malformed REQUEST from %s: %v", directSender, err)
		return
	}

	dest := peerutil.Endpoint{Host: directSender.Host, Port: req.RequesterStreamPort}
	logger.Sugar.Infof("[REQUEST_RECEIVED] file=%s from=%s chunks=%v", req.FileName, dest, req.ChunkIDs)

	if s.pusher == nil {
		logger.Sugar.Errorf("[DiscoveryService] no chunk pusher wired, dropping REQUEST for %s", req.FileName)
		return
	}

	go func() {
		if err := s.pusher.PushChunks(context.Background(), dest, req.FileName, req.ChunkIDs); err != nil {
			logger.Sugar.Errorf("[DiscoveryService] push to %s failed: %v", dest, err)
		}
	}()
}

func (s *Service) send(to peerutil.Endpoint, msg string) error {
	addr := &net.UDPAddr{IP: net.ParseIP(to.Host), Port: to.Port}
	if addr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp", to.String())
		if err != nil {
			return fmt.Errorf("resolve %s: %w", to, err)
		}
		addr = resolved
	}
	_, err := s.conn.WriteToUDP([]byte(msg), addr)
	return err
}

// SetNeighbors configures the direct neighbors this peer floods
// DISCOVERY to and forwards DISCOVERY toward.
func (s *Service) SetNeighbors(neighbors []peerutil.Endpoint) {
	s.neighborsMu.Lock()
	defer s.neighborsMu.Unlock()
	s.neighbors = neighbors
}

// StartDiscovery opens the ProcessingWindow for fileName and floods
// DISCOVERY to every neighbor with the given total chunk count and
// initial TTL, originating from self.
func (s *Service) StartDiscovery(fileName string, totalChunks, initialTTL int) {
	s.windowMu.Lock()
	s.window[fileName] = true
	s.windowMu.Unlock()

	s.reg.Begin(fileName, totalChunks)

	s.neighborsMu.Lock()
	neighbors := append([]peerutil.Endpoint(nil), s.neighbors...)
	s.neighborsMu.Unlock()

	d := wire.Discovery{FileName: fileName, TotalChunks: totalChunks, TTL: initialTTL, Origin: s.self}
	msg := wire.BuildDiscovery(d)

	limiter := rate.NewLimiter(rate.Every(InterNeighborDelay), 1)
	for _, n := range neighbors {
		_ = limiter.Wait(context.Background())
		if err := s.send(n, msg); err != nil {
			logger.Sugar.Errorf("[DiscoveryService] failed to send DISCOVERY to %s: %v", n, err)
			continue
		}
		monitor.RecordDiscoverySent()
		logger.Sugar.Infof("[DISCOVERY_SENT] file=%s ttl=%d to=%s", fileName, initialTTL, n)
	}
}

// SendRequest sends a REQUEST datagram to dest asking for chunkIDs of
// fileName, advertising our own stream port so dest knows where to
// push the chunks.
func (s *Service) SendRequest(dest peerutil.Endpoint, fileName string, chunkIDs []int) error {
	msg := wire.BuildRequest(fileName, s.self.StreamPort(), chunkIDs)
	if err := s.send(dest, msg); err != nil {
		return fmt.Errorf("send REQUEST to %s: %w", dest, err)
	}
	logger.Sugar.Infof("[REQUEST_SENT] file=%s to=%s chunks=%v", fileName, dest, chunkIDs)
	return nil
}

// Snapshot exposes the registry snapshot for fileName so the
// orchestrator can run the Selector after a response window closes.
func (s *Service) Snapshot(fileName string) [][]registry.Record {
	return s.reg.Snapshot(fileName)
}

// WaitResponses blocks for the fixed response window, then closes the
// ProcessingWindow for fileName. Any RESPONSE arriving afterward is
// logged and dropped.
func (s *Service) WaitResponses(fileName string) {
	time.Sleep(ResponseWindow)

	s.windowMu.Lock()
	s.window[fileName] = false
	s.windowMu.Unlock()

	logger.Sugar.Infof("[DiscoveryService] response window closed for %s", fileName)
}
