package wire

import (
	"strings"
	"testing"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
)

func TestDiscoveryRoundTrip(t *testing.T) {
	d := Discovery{FileName: "movie.mp4", TotalChunks: 4, TTL: 2, Origin: peerutil.Endpoint{Host: "10.0.0.1", Port: 9001}}
	msg := BuildDiscovery(d)

	fields := strings.Fields(msg)
	if fields[0] != "DISCOVERY" {
		t.Fatalf("expected leading token DISCOVERY, got %q", fields[0])
	}
	got, err := ParseDiscovery(fields)
	if err != nil {
		t.Fatalf("ParseDiscovery: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	msg := BuildResponse("movie.mp4", 500, []int{0, 2, 3})
	fields := strings.Fields(msg)
	got, err := ParseResponse(fields)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if got.FileName != "movie.mp4" || got.DeclaredRate != 500 || len(got.ChunkIDs) != 3 {
		t.Fatalf("unexpected parse result: %+v", got)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	msg := BuildRequest("movie.mp4", 9001, []int{1, 2})
	fields := strings.Fields(msg)
	got, err := ParseRequest(fields)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if got.RequesterStreamPort != 9001 || len(got.ChunkIDs) != 2 {
		t.Fatalf("unexpected parse result: %+v", got)
	}
}

func TestRequestRejectsEmptyChunkList(t *testing.T) {
	fields := strings.Fields("REQUEST movie.mp4 9001")
	if _, err := ParseRequest(fields); err == nil {
		t.Fatal("expected error for REQUEST with no chunk ids")
	}
}

func TestPutHeaderIsExactlyControlHeaderSize(t *testing.T) {
	header := BuildPutHeader(Put{FileName: "f", ChunkID: 3, DeclaredRate: 100, ChunkSize: 4096})
	if len(header) != ControlHeaderSize {
		t.Fatalf("expected header of %d bytes, got %d", ControlHeaderSize, len(header))
	}

	got, err := ParsePutHeader(header)
	if err != nil {
		t.Fatalf("ParsePutHeader: %v", err)
	}
	if got.FileName != "f" || got.ChunkID != 3 || got.DeclaredRate != 100 || got.ChunkSize != 4096 {
		t.Fatalf("unexpected parse result: %+v", got)
	}
}

func TestParsePutHeaderRejectsWrongSize(t *testing.T) {
	if _, err := ParsePutHeader(make([]byte, ControlHeaderSize-1)); err == nil {
		t.Fatal("expected error for a header shorter than ControlHeaderSize")
	}
}
