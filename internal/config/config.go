// Package config loads the two static configuration files a run
// needs: the peer registry (id -> endpoint + declared rate) and the
// adjacency list (id -> neighbor ids). Both are immutable for the
// lifetime of the process. Grounded on original_source/ConfigManager,
// reshaped into idiomatic Go error returns instead of "log and return
// an empty map."
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
)

// LoadPeerRegistry parses lines of the form
// "<peer_id>:<ip>,<datagram_port>,<declared_rate_bytes_per_sec>".
// Whitespace around the IP is stripped.
func LoadPeerRegistry(path string) (map[peerutil.PeerID]peerutil.PeerSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open peer registry %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[peerutil.PeerID]peerutil.PeerSpec)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		idPart, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("peer registry %s:%d: missing ':' in %q", path, lineNo, line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("peer registry %s:%d: bad peer id %q: %w", path, lineNo, idPart, err)
		}

		fields := strings.Split(rest, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("peer registry %s:%d: expected ip,port,rate got %q", path, lineNo, rest)
		}
		ip := strings.TrimSpace(fields[0])
		port, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("peer registry %s:%d: bad port %q: %w", path, lineNo, fields[1], err)
		}
		rate, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("peer registry %s:%d: bad rate %q: %w", path, lineNo, fields[2], err)
		}

		out[peerutil.PeerID(id)] = peerutil.PeerSpec{
			ID:           peerutil.PeerID(id),
			Endpoint:     peerutil.Endpoint{Host: ip, Port: port},
			DeclaredRate: rate,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read peer registry %s: %w", path, err)
	}
	return out, nil
}

// LoadAdjacency parses lines of the form
// "<peer_id>:<neighbor_id>[,<neighbor_id>...]". The graph need not be
// symmetric.
func LoadAdjacency(path string) (map[peerutil.PeerID][]peerutil.PeerID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open adjacency file %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[peerutil.PeerID][]peerutil.PeerID)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		idPart, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("adjacency %s:%d: missing ':' in %q", path, lineNo, line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("adjacency %s:%d: bad peer id %q: %w", path, lineNo, idPart, err)
		}

		var neighbors []peerutil.PeerID
		for _, tok := range strings.Split(rest, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			nid, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("adjacency %s:%d: bad neighbor id %q: %w", path, lineNo, tok, err)
			}
			neighbors = append(neighbors, peerutil.PeerID(nid))
		}
		out[peerutil.PeerID(id)] = neighbors
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read adjacency %s: %w", path, err)
	}
	return out, nil
}

// NeighborEndpoints resolves one peer's neighbor ids into the
// endpoints the discovery service floods to.
func NeighborEndpoints(id peerutil.PeerID, adj map[peerutil.PeerID][]peerutil.PeerID, registry map[peerutil.PeerID]peerutil.PeerSpec) []peerutil.Endpoint {
	var out []peerutil.Endpoint
	for _, nid := range adj[id] {
		if spec, ok := registry[nid]; ok {
			out = append(out, spec.Endpoint)
		}
	}
	return out
}
