// Package selector implements the pure assignment policy of spec
// §4.3: given a LocationRegistry snapshot, pick exactly one source
// per missing chunk, preferring the fastest declared rate and
// breaking ties toward whichever candidate is currently carrying the
// lighter load. Grounded on peer/logic.go's assignChunks in the
// teacher and original_source/FileManager::selectPeersForChunkDownload,
// generalized from "one chunk per index" single-rate comparison into
// the documented stable-sort-plus-load-balance algorithm.
package selector

import (
	"sort"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
)

// Select is a pure function of its input: no I/O, no shared state.
// Chunks with no candidates are omitted from the result; no endpoint
// appears with an empty assignment list.
func Select(snapshot [][]registry.Record) map[peerutil.Endpoint][]int {
	assign := make(map[peerutil.Endpoint][]int)
	load := make(map[peerutil.Endpoint]int)

	for chunkIndex, candidates := range snapshot {
		if len(candidates) == 0 {
			continue
		}

		sorted := make([]registry.Record, len(candidates))
		copy(sorted, candidates)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].DeclaredRate > sorted[j].DeclaredRate
		})

		best := sorted[0]
		minLoad := load[best.Endpoint]
		for _, cand := range sorted {
			if cand.DeclaredRate < best.DeclaredRate {
				// Rate-sorted: only candidates at the top rate compete on load.
				break
			}
			l := load[cand.Endpoint]
			if l < minLoad {
				best = cand
				minLoad = l
			}
		}

		assign[best.Endpoint] = append(assign[best.Endpoint], chunkIndex)
		load[best.Endpoint]++
	}

	return assign
}
