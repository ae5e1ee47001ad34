package selector

import (
	"testing"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
)

func ep(port int) peerutil.Endpoint {
	return peerutil.Endpoint{Host: "127.0.0.1", Port: port}
}

func TestSelectSingleChunkPrefersFasterRate(t *testing.T) {
	a, b := ep(9001), ep(9002)
	snapshot := [][]registry.Record{
		{
			{Endpoint: a, DeclaredRate: 100},
			{Endpoint: b, DeclaredRate: 10},
		},
	}

	got := Select(snapshot)

	if chunks, ok := got[a]; !ok || len(chunks) != 1 || chunks[0] != 0 {
		t.Fatalf("expected chunk 0 assigned to %v, got %v", a, got)
	}
	if _, ok := got[b]; ok {
		t.Fatalf("did not expect %v in assignment: %v", b, got)
	}
}

func TestSelectEqualRatesLoadBalance(t *testing.T) {
	a, b := ep(9001), ep(9002)
	snapshot := [][]registry.Record{
		{{Endpoint: a, DeclaredRate: 50}, {Endpoint: b, DeclaredRate: 50}},
		{{Endpoint: a, DeclaredRate: 50}, {Endpoint: b, DeclaredRate: 50}},
	}

	got := Select(snapshot)

	if len(got[a]) != 1 || len(got[b]) != 1 {
		t.Fatalf("expected one chunk per peer, got %v", got)
	}
}

func TestSelectFourChunksEqualRateSplitsTwoTwo(t *testing.T) {
	a, b := ep(9001), ep(9002)
	snapshot := make([][]registry.Record, 4)
	for i := range snapshot {
		snapshot[i] = []registry.Record{
			{Endpoint: a, DeclaredRate: 10},
			{Endpoint: b, DeclaredRate: 10},
		}
	}

	got := Select(snapshot)

	if len(got[a]) != 2 || len(got[b]) != 2 {
		t.Fatalf("expected 2/2 split, got a=%v b=%v", got[a], got[b])
	}
}

func TestSelectRatePriorityBeatsLoadBalance(t *testing.T) {
	fast, slow := ep(9001), ep(9002)
	snapshot := make([][]registry.Record, 4)
	for i := range snapshot {
		snapshot[i] = []registry.Record{
			{Endpoint: fast, DeclaredRate: 100},
			{Endpoint: slow, DeclaredRate: 10},
		}
	}

	got := Select(snapshot)

	if len(got[fast]) != 4 {
		t.Fatalf("expected all 4 chunks to go to the faster peer, got %v", got)
	}
	if _, ok := got[slow]; ok {
		t.Fatalf("slower peer should not appear in assignment at all: %v", got)
	}
}

func TestSelectOmitsChunksWithNoCandidates(t *testing.T) {
	a := ep(9001)
	snapshot := [][]registry.Record{
		{{Endpoint: a, DeclaredRate: 10}},
		nil,
		{{Endpoint: a, DeclaredRate: 10}},
	}

	got := Select(snapshot)

	chunks := got[a]
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks assigned, got %v", chunks)
	}
	for _, c := range chunks {
		if c == 1 {
			t.Fatalf("chunk 1 had no candidates and must not be assigned")
		}
	}
}

func TestSelectIsPureAndDeterministic(t *testing.T) {
	a, b := ep(9001), ep(9002)
	snapshot := [][]registry.Record{
		{{Endpoint: a, DeclaredRate: 30}, {Endpoint: b, DeclaredRate: 30}},
		{{Endpoint: b, DeclaredRate: 30}, {Endpoint: a, DeclaredRate: 30}},
	}

	first := Select(snapshot)
	second := Select(snapshot)

	if len(first[a]) != len(second[a]) || len(first[b]) != len(second[b]) {
		t.Fatalf("Select must be deterministic for the same snapshot: %v vs %v", first, second)
	}
}

func TestSelectNoEndpointHasEmptyAssignment(t *testing.T) {
	a := ep(9001)
	snapshot := [][]registry.Record{
		{{Endpoint: a, DeclaredRate: 10}},
	}

	got := Select(snapshot)
	for endpoint, chunks := range got {
		if len(chunks) == 0 {
			t.Fatalf("endpoint %v present with empty assignment", endpoint)
		}
	}
}
