package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
)

func TestScanDiscoversExistingChunks(t *testing.T) {
	base := t.TempDir()
	peerDir := filepath.Join(base, "1")
	if err := os.MkdirAll(peerDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(peerDir, "movie.mp4.ch0"), []byte("a"), 0644); err != nil {
		t.Fatalf("write chunk 0: %v", err)
	}
	if err := os.WriteFile(filepath.Join(peerDir, "movie.mp4.ch2"), []byte("c"), 0644); err != nil {
		t.Fatalf("write chunk 2: %v", err)
	}

	s := New(base, peerutil.PeerID(1), registry.New())
	if err := s.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := s.AvailableChunks("movie.mp4")
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("expected [0 2], got %v", got)
	}
	if !s.HasChunk("movie.mp4", 0) || s.HasChunk("movie.mp4", 1) {
		t.Fatalf("HasChunk mismatch for chunk set %v", got)
	}
}

func TestSaveChunkAssemblesWhenComplete(t *testing.T) {
	base := t.TempDir()
	reg := registry.New()
	s := New(base, peerutil.PeerID(1), reg)
	if err := s.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	s.SetTotalChunks("movie.mp4", 2)

	if err := s.SaveChunk("movie.mp4", 0, []byte("AB")); err != nil {
		t.Fatalf("SaveChunk 0: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "1", "movie.mp4")); err == nil {
		t.Fatal("file should not be assembled before all chunks arrive")
	}

	if err := s.SaveChunk("movie.mp4", 1, []byte("CD")); err != nil {
		t.Fatalf("SaveChunk 1: %v", err)
	}

	assembled, err := os.ReadFile(filepath.Join(base, "1", "movie.mp4"))
	if err != nil {
		t.Fatalf("expected assembled file: %v", err)
	}
	if string(assembled) != "ABCD" {
		t.Fatalf("expected concatenation in chunk order, got %q", assembled)
	}
}

func TestLoadMetadataParsesSidecar(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "movie.mp4.p2p")
	if err := os.WriteFile(path, []byte("movie.mp4 4 3\n"), 0644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	meta, ok := LoadMetadata(base, "movie.mp4")
	if !ok {
		t.Fatal("expected metadata to load")
	}
	if meta.FileName != "movie.mp4" || meta.TotalChunks != 4 || meta.InitialTTL != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestLoadMetadataMissingSidecarIsNotOK(t *testing.T) {
	base := t.TempDir()
	if _, ok := LoadMetadata(base, "absent.bin"); ok {
		t.Fatal("expected ok=false for a missing sidecar")
	}
}
