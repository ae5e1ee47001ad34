// Package transfer implements the TransferService of spec §4.5: a TCP
// server that accepts one connection per REQUEST batch and reads the
// fixed 1024-byte PUT control header followed by the chunk payload,
// in a loop, for as many chunks as the client sends on that same
// connection; and a client side that opens one connection per
// destination and pushes every requested chunk over it before
// closing.
//
// Grounded on the teacher's acceptLoop/handleConn pair in
// pkg/transport/tcp/tcp_transport.go (generalized from gob frames to
// the spec's fixed control header) and original_source/TCPServer.cpp's
// run()/sendChunks()/receiveChunks() — receiveChunks is a while(true)
// reading control-message-then-chunk repeatedly until the peer closes,
// and sendChunks opens one socket and loops every chunk over it. Rate
// pacing uses golang.org/x/time/rate instead of the original's raw
// time.Sleep loop, one token per byte sent.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/p2p-swarm/p2p-transfer/internal/logger"
	"github.com/p2p-swarm/p2p-transfer/internal/monitor"
	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/wire"
)

// SliceSize is the maximum number of bytes moved per send or receive
// step. Sends are paced: a slice of n bytes waits for n tokens of the
// declared-rate limiter, so a full slice takes one second only at a
// declared rate of SliceSize bytes/sec. Receives are not paced.
const SliceSize = 4096

// ChunkSource is the subset of the FileStore the transfer server's
// client side needs to read a local chunk off disk before sending it.
type ChunkSource interface {
	ChunkPath(fileName string, chunkID int) string
}

// ChunkSink is the subset of the FileStore the transfer server's
// accept side needs to persist an inbound chunk.
type ChunkSink interface {
	SaveChunk(fileName string, chunkID int, data []byte) error
}

// Service is the TransferService: a TCP listener on self's stream
// port, plus an outbound push path used once a REQUEST is served.
type Service struct {
	self         peerutil.Endpoint
	declaredRate int

	listener net.Listener
	sink     ChunkSink
	source   ChunkSource
}

// New creates a transfer Service. declaredRate is this peer's
// advertised transfer rate in bytes per second, used to pace both the
// control header and the payload on every send.
func New(self peerutil.Endpoint, declaredRate int, sink ChunkSink, source ChunkSource) *Service {
	return &Service{self: self, declaredRate: declaredRate, sink: sink, source: source}
}

// Start binds the stream port (self.Port + 1000, per spec §3) and
// begins accepting connections in the background.
func (s *Service) Start() error {
	addr := fmt.Sprintf(":%d", s.self.StreamPort())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind transfer listener on %d: %w", s.self.StreamPort(), err)
	}
	s.listener = ln
	logger.Sugar.Infof("[TransferService] listening on %s", addr)

	go s.acceptLoop()
	return nil
}

// Close shuts down the listener.
func (s *Service) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Service) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			logger.Sugar.Infof("[TransferService] accept loop stopped: %v", err)
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn serves one session: it loops reading control
// header-then-payload for as many chunks as the peer sends on this
// connection, saving each as it arrives, until the peer closes the
// connection in between chunks (an orderly EOF on the header read).
// Any error inside a chunk (a short header, a malformed header, a
// short payload) ends the session — bytes remaining on the wire at
// that point belong to the chunk that failed, not a fresh one.
func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		header := make([]byte, wire.ControlHeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				logger.Sugar.Errorf("[TransferService] short read on control header from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		put, err := wire.ParsePutHeader(header)
		if err != nil {
			logger.Sugar.Errorf("[TransferService] malformed control header from %s: %v", conn.RemoteAddr(), err)
			return
		}

		data, err := s.receivePayload(conn, put)
		if err != nil {
			logger.Sugar.Errorf("[TransferService] payload read failed for %s chunk %d from %s: %v", put.FileName, put.ChunkID, conn.RemoteAddr(), err)
			return
		}

		if err := s.sink.SaveChunk(put.FileName, put.ChunkID, data); err != nil {
			logger.Sugar.Errorf("[TransferService] failed to save %s chunk %d: %v", put.FileName, put.ChunkID, err)
			return
		}

		monitor.RecordChunkReceived(len(data))
		logger.Sugar.Infof("[CHUNK_RECEIVED] file=%s chunk=%d bytes=%d from=%s", put.FileName, put.ChunkID, len(data), conn.RemoteAddr())
	}
}

func (s *Service) receivePayload(conn net.Conn, put wire.Put) ([]byte, error) {
	buf := make([]byte, 0, put.ChunkSize)
	remaining := put.ChunkSize

	for remaining > 0 {
		n := SliceSize
		if n > remaining {
			n = remaining
		}
		slice := make([]byte, n)
		read, err := io.ReadFull(conn, slice)
		if err != nil {
			return nil, fmt.Errorf("reading slice (%d bytes remaining): %w", remaining, err)
		}
		buf = append(buf, slice[:read]...)
		remaining -= read
	}
	return buf, nil
}

// PushChunks implements discovery.ChunkPusher: it opens one TCP
// connection to dest for the whole batch, then sends every chunk id's
// control header and payload over it in turn, each paced to the
// declared rate, closing the connection only after the last chunk has
// gone out — one session, N chunks, matching
// original_source/TCPServer.cpp's sendChunks.
func (s *Service) PushChunks(ctx context.Context, dest peerutil.Endpoint, fileName string, chunkIDs []int) error {
	conn, err := net.DialTimeout("tcp", dest.StreamAddr(), 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", dest.StreamAddr(), err)
	}
	defer conn.Close()

	limiter := rate.NewLimiter(rate.Limit(s.declaredRate), SliceSize)

	for _, chunkID := range chunkIDs {
		if err := s.pushChunk(ctx, conn, limiter, dest, fileName, chunkID); err != nil {
			return fmt.Errorf("push chunk %d of %s to %s: %w", chunkID, fileName, dest, err)
		}
	}
	return nil
}

func (s *Service) pushChunk(ctx context.Context, conn net.Conn, limiter *rate.Limiter, dest peerutil.Endpoint, fileName string, chunkID int) error {
	path := s.source.ChunkPath(fileName, chunkID)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read local chunk: %w", err)
	}

	header := wire.BuildPutHeader(wire.Put{
		FileName:     fileName,
		ChunkID:      chunkID,
		DeclaredRate: s.declaredRate,
		ChunkSize:    len(data),
	})

	if err := s.writePaced(ctx, conn, limiter, header); err != nil {
		return fmt.Errorf("send control header: %w", err)
	}
	if err := s.writePaced(ctx, conn, limiter, data); err != nil {
		return fmt.Errorf("send payload: %w", err)
	}

	monitor.RecordChunkSent(len(data))
	logger.Sugar.Infof("[CHUNK_SENT] file=%s chunk=%d bytes=%d to=%s", fileName, chunkID, len(data), dest)
	return nil
}

// writePaced writes payload in SliceSize slices, waiting on the
// limiter for enough tokens before each slice so the connection never
// exceeds the declared byte rate. For declared rates above SliceSize
// bytes/sec this paces slices closer together than once per second;
// the long-run average still matches the declared rate exactly.
func (s *Service) writePaced(ctx context.Context, conn net.Conn, limiter *rate.Limiter, payload []byte) error {
	for len(payload) > 0 {
		n := SliceSize
		if n > len(payload) {
			n = len(payload)
		}
		if err := limiter.WaitN(ctx, n); err != nil {
			return fmt.Errorf("rate wait: %w", err)
		}
		if _, err := conn.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}
