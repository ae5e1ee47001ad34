// Package registry implements the LocationRegistry of spec §4.2: a
// per-file table of chunk advertisements, keyed by file name, each
// entry guarded by its own mutex so inserts against different files
// never contend. Grounded on original_source/FileManager's
// chunk_location_info (an unordered_map<string, vector<vector<
// ChunkLocationInfo>>> paired with a separate unordered_map<string,
// mutex> of per-file locks), folded here into one striped lock map per
// the "Per-key mutex map" guidance of spec §9.
package registry

import (
	"sync"

	"github.com/p2p-swarm/p2p-transfer/internal/logger"
	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
)

// Record is one advertisement: the endpoint that holds a chunk and
// the byte rate it declared when advertising it.
type Record struct {
	Endpoint     peerutil.Endpoint
	DeclaredRate int
}

// candidateSet holds one chunk index's advertisers in the order they
// arrived, the way original_source/FileManager's chunk_location_info
// appends to a std::vector rather than a map. Insertion order is what
// makes the Selector's rate-sorted tie-break deterministic: on an
// equal rate and equal load, the first to advertise wins.
type candidateSet struct {
	order []peerutil.Endpoint
	byEP  map[peerutil.Endpoint]Record
}

func newCandidateSet() candidateSet {
	return candidateSet{byEP: make(map[peerutil.Endpoint]Record)}
}

func (c *candidateSet) add(rec Record) {
	if _, exists := c.byEP[rec.Endpoint]; exists {
		return
	}
	c.byEP[rec.Endpoint] = rec
	c.order = append(c.order, rec.Endpoint)
}

func (c *candidateSet) records() []Record {
	if len(c.order) == 0 {
		return nil
	}
	out := make([]Record, len(c.order))
	for i, ep := range c.order {
		out[i] = c.byEP[ep]
	}
	return out
}

type fileEntry struct {
	mu   sync.Mutex
	byID []candidateSet // index -> insertion-ordered advertisers
}

// Registry holds one fileEntry per file currently being searched for.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*fileEntry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*fileEntry)}
}

// Begin prepares an empty entry of totalChunks slots for fileName.
func (r *Registry) Begin(fileName string, totalChunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make([]candidateSet, totalChunks)
	for i := range byID {
		byID[i] = newCandidateSet()
	}
	r.entries[fileName] = &fileEntry{byID: byID}
}

func (r *Registry) entryFor(fileName string) *fileEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[fileName]
}

// Record inserts ep's advertisement at every listed chunk index,
// skipping (without error) any id out of range or already recorded
// for that endpoint. Re-advertisement is idempotent.
func (r *Registry) Record(fileName string, chunkIDs []int, ep peerutil.Endpoint, rate int) {
	entry := r.entryFor(fileName)
	if entry == nil {
		logger.Sugar.Warnf("[LocationRegistry] record for unknown file %s from %s", fileName, ep)
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for _, id := range chunkIDs {
		if id < 0 || id >= len(entry.byID) {
			logger.Sugar.Warnf("[LocationRegistry] out-of-range chunk id %d for %s from %s", id, fileName, ep)
			continue
		}
		entry.byID[id].add(Record{Endpoint: ep, DeclaredRate: rate})
	}
}

// Snapshot returns a deep copy of the per-chunk candidate sets for
// fileName, in the order each endpoint first advertised that chunk,
// taken under the file's mutex so the Selector can run without
// holding it.
func (r *Registry) Snapshot(fileName string) [][]Record {
	entry := r.entryFor(fileName)
	if entry == nil {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	out := make([][]Record, len(entry.byID))
	for i, set := range entry.byID {
		out[i] = set.records()
	}
	return out
}

// Discard erases the per-file entry and its mutex.
func (r *Registry) Discard(fileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, fileName)
}
