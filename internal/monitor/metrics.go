// Package monitor tracks lightweight runtime counters for a running
// peer: bytes pushed/pulled over stream transfers and discovery
// traffic volume. Adapted from the teacher's pkg/monitor, generalized
// to separate send/receive and to count discovery datagrams.
package monitor

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/p2p-swarm/p2p-transfer/internal/logger"
)

// Metrics holds process-wide counters for one peer.
type Metrics struct {
	BytesSent       int64
	BytesReceived   int64
	ChunksSent      int64
	ChunksReceived  int64
	DiscoverySent   int64
	DiscoveryRecv   int64
	ServerStart     time.Time
}

// Global is the single metrics instance for the running peer process.
var Global = &Metrics{ServerStart: time.Now()}

// LogPeriodic logs runtime + transfer metrics on a fixed interval
// until ctx-like caller stops calling it (the teacher never cancels
// this either; it runs for the process lifetime).
func LogPeriodic(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		elapsed := time.Since(Global.ServerStart).Seconds()
		var txThroughput, rxThroughput float64
		if elapsed > 0 {
			txThroughput = float64(atomic.LoadInt64(&Global.BytesSent)) / elapsed / 1024 / 1024
			rxThroughput = float64(atomic.LoadInt64(&Global.BytesReceived)) / elapsed / 1024 / 1024
		}

		logger.Sugar.Infof("[Metrics] goroutines=%d heapAlloc=%dMB tx=%.2fMB/s rx=%.2fMB/s chunksSent=%d chunksRecv=%d discoverySent=%d discoveryRecv=%d",
			runtime.NumGoroutine(),
			m.HeapAlloc/1024/1024,
			txThroughput, rxThroughput,
			atomic.LoadInt64(&Global.ChunksSent),
			atomic.LoadInt64(&Global.ChunksReceived),
			atomic.LoadInt64(&Global.DiscoverySent),
			atomic.LoadInt64(&Global.DiscoveryRecv),
		)
	}
}

// RecordChunkSent records a completed outbound chunk push.
func RecordChunkSent(bytes int) {
	atomic.AddInt64(&Global.BytesSent, int64(bytes))
	atomic.AddInt64(&Global.ChunksSent, 1)
}

// RecordChunkReceived records a completed inbound chunk.
func RecordChunkReceived(bytes int) {
	atomic.AddInt64(&Global.BytesReceived, int64(bytes))
	atomic.AddInt64(&Global.ChunksReceived, 1)
}

// RecordDiscoverySent records one outbound DISCOVERY datagram, whether
// an initial flood or a forward.
func RecordDiscoverySent() {
	atomic.AddInt64(&Global.DiscoverySent, 1)
}

// RecordDiscoveryReceived records one inbound DISCOVERY datagram.
func RecordDiscoveryReceived() {
	atomic.AddInt64(&Global.DiscoveryRecv, 1)
}
