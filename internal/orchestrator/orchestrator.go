// Package orchestrator drives one peer's lifecycle end to end: load a
// file's metadata, flood DISCOVERY, wait for the response window,
// select sources, send REQUEST, and wait for assembly — the data flow
// of spec §2. Grounded on the teacher's handleChunks in
// peer/logic.go, reshaped from the teacher's worker-pool/ChunkJob
// fan-out into one goroutine per requested file, since the actual
// fan-out across remote peers now happens over the wire rather than
// over a local goroutine pool.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/p2p-swarm/p2p-transfer/internal/discovery"
	"github.com/p2p-swarm/p2p-transfer/internal/logger"
	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
	"github.com/p2p-swarm/p2p-transfer/internal/selector"
	"github.com/p2p-swarm/p2p-transfer/internal/store"
	"github.com/p2p-swarm/p2p-transfer/internal/transfer"
)

// AssemblyPollInterval is how often the orchestrator checks whether a
// requested file has been fully assembled while it waits.
const AssemblyPollInterval = 500 * time.Millisecond

// AssemblyTimeout bounds how long the orchestrator waits for a
// file's last chunk to arrive after REQUEST has been sent, before
// giving up and reporting the download incomplete.
const AssemblyTimeout = 2 * time.Minute

// FileStatus is a point-in-time view of one file's download state,
// returned by Status for the interactive shell.
type FileStatus struct {
	FileName    string
	TotalChunks int
	HaveChunks  []int
	Assembled   bool
}

// Orchestrator is the PeerOrchestrator of spec §4.6: it owns this
// peer's store, registry, discovery and transfer services, and runs
// the request pipeline for every file named on the command line.
type Orchestrator struct {
	self    peerutil.PeerID
	baseDir string

	fileStore *store.Store
	reg       *registry.Registry
	disc      *discovery.Service
	xfer      *transfer.Service

	statusMu sync.Mutex
	status   map[string]*FileStatus
}

// New wires an Orchestrator from its already-constructed services.
// The caller is responsible for calling disc.SetChunkPusher(xfer)
// before Start.
func New(self peerutil.PeerID, baseDir string, fileStore *store.Store, reg *registry.Registry, disc *discovery.Service, xfer *transfer.Service) *Orchestrator {
	return &Orchestrator{
		self:      self,
		baseDir:   baseDir,
		fileStore: fileStore,
		reg:       reg,
		disc:      disc,
		xfer:      xfer,
		status:    make(map[string]*FileStatus),
	}
}

// Start brings up the discovery and transfer sockets. It must be
// called once, before RequestFile.
func (o *Orchestrator) Start() error {
	if err := o.fileStore.Scan(); err != nil {
		return fmt.Errorf("scan local chunks: %w", err)
	}
	if err := o.disc.Start(); err != nil {
		return fmt.Errorf("start discovery service: %w", err)
	}
	if err := o.xfer.Start(); err != nil {
		return fmt.Errorf("start transfer service: %w", err)
	}
	return nil
}

// Close shuts down both sockets.
func (o *Orchestrator) Close() {
	o.disc.Close()
	o.xfer.Close()
}

// RequestFile runs the full data flow for one file: load its sidecar
// metadata, flood DISCOVERY, wait out the response window, select
// sources for every missing chunk, send REQUEST to each selected
// peer, then wait for local assembly. It returns once the file is
// assembled or AssemblyTimeout elapses.
func (o *Orchestrator) RequestFile(ctx context.Context, fileName string) error {
	meta, ok := store.LoadMetadata(o.baseDir, fileName)
	if !ok {
		return fmt.Errorf("no metadata sidecar for %s", fileName)
	}

	o.fileStore.SetTotalChunks(fileName, meta.TotalChunks)
	o.setStatus(fileName, meta.TotalChunks)

	if assembled, err := o.fileStore.TryAssemble(fileName); err != nil {
		return fmt.Errorf("check existing chunks for %s: %w", fileName, err)
	} else if assembled {
		logger.Sugar.Infof("[Orchestrator] %s already complete locally", fileName)
		o.markAssembled(fileName)
		return nil
	}

	logger.Sugar.Infof("[Orchestrator] requesting %s (%d chunks, ttl=%d)", fileName, meta.TotalChunks, meta.InitialTTL)
	o.disc.StartDiscovery(fileName, meta.TotalChunks, meta.InitialTTL)
	o.disc.WaitResponses(fileName)

	snapshot := o.disc.Snapshot(fileName)
	assignment := selector.Select(snapshot)

	if len(assignment) == 0 {
		return fmt.Errorf("no peers responded with chunks for %s", fileName)
	}

	for dest, chunkIDs := range assignment {
		if err := o.disc.SendRequest(dest, fileName, chunkIDs); err != nil {
			logger.Sugar.Errorf("[Orchestrator] failed to request %v of %s from %s: %v", chunkIDs, fileName, dest, err)
		}
	}

	return o.waitForAssembly(ctx, fileName)
}

func (o *Orchestrator) waitForAssembly(ctx context.Context, fileName string) error {
	deadline := time.Now().Add(AssemblyTimeout)
	ticker := time.NewTicker(AssemblyPollInterval)
	defer ticker.Stop()

	for {
		o.refreshStatus(fileName)

		if assembled, err := o.fileStore.TryAssemble(fileName); err != nil {
			return fmt.Errorf("assemble %s: %w", fileName, err)
		} else if assembled {
			o.markAssembled(fileName)
			logger.Sugar.Infof("[Orchestrator] %s fully assembled", fileName)
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s to finish downloading", fileName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) setStatus(fileName string, totalChunks int) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.status[fileName] = &FileStatus{FileName: fileName, TotalChunks: totalChunks}
}

func (o *Orchestrator) refreshStatus(fileName string) {
	have := o.fileStore.AvailableChunks(fileName)
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	st, ok := o.status[fileName]
	if !ok {
		st = &FileStatus{FileName: fileName}
		o.status[fileName] = st
	}
	st.HaveChunks = have
}

func (o *Orchestrator) markAssembled(fileName string) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	if st, ok := o.status[fileName]; ok {
		st.Assembled = true
	}
}

// Status returns a snapshot of every file this orchestrator has been
// asked to fetch, for the interactive shell's "status" command.
func (o *Orchestrator) Status() []FileStatus {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	out := make([]FileStatus, 0, len(o.status))
	for _, st := range o.status {
		out = append(out, *st)
	}
	return out
}

// ChunksOf returns the chunk ids held locally for fileName, for the
// interactive shell's "chunks <file>" command.
func (o *Orchestrator) ChunksOf(fileName string) []int {
	return o.fileStore.AvailableChunks(fileName)
}
