package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/p2p-swarm/p2p-transfer/internal/discovery"
	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
	"github.com/p2p-swarm/p2p-transfer/internal/store"
	"github.com/p2p-swarm/p2p-transfer/internal/transfer"
)

func writeSidecar(t *testing.T, dir, fileName string, totalChunks, ttl int) {
	t.Helper()
	content := []byte(fileName + " " + itoa(totalChunks) + " " + itoa(ttl) + "\n")
	if err := os.WriteFile(filepath.Join(dir, fileName+".p2p"), content, 0644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func writeChunk(t *testing.T, peerDir, fileName string, chunkID int, data []byte) {
	t.Helper()
	if err := os.MkdirAll(peerDir, 0755); err != nil {
		t.Fatalf("mkdir peer dir: %v", err)
	}
	path := filepath.Join(peerDir, fileName+".ch"+itoa(chunkID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
}

func TestRequestFileShortCircuitsWhenAlreadyComplete(t *testing.T) {
	baseDir := t.TempDir()
	fileName := "movie.mp4"
	writeSidecar(t, baseDir, fileName, 2, 3)

	peerID := peerutil.PeerID(1)
	writeChunk(t, filepath.Join(baseDir, "1"), fileName, 0, []byte("aa"))
	writeChunk(t, filepath.Join(baseDir, "1"), fileName, 1, []byte("bb"))

	reg := registry.New()
	fs := store.New(baseDir, peerID, reg)
	if err := fs.Scan(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	self := peerutil.Endpoint{Host: "127.0.0.1", Port: 30000}
	disc := discovery.New(self, fs, reg)
	xfer := transfer.New(self, 1<<20, fs, fs)

	o := New(peerID, baseDir, fs, reg, disc, xfer)

	if err := o.RequestFile(context.Background(), fileName); err != nil {
		t.Fatalf("RequestFile: %v", err)
	}

	assembledPath := filepath.Join(baseDir, "1", fileName)
	if _, err := os.Stat(assembledPath); err != nil {
		t.Fatalf("expected assembled file at %s: %v", assembledPath, err)
	}

	statuses := o.Status()
	if len(statuses) != 1 || !statuses[0].Assembled {
		t.Fatalf("expected one assembled status entry, got %+v", statuses)
	}
}

func TestRequestFileMissingSidecarErrors(t *testing.T) {
	baseDir := t.TempDir()
	reg := registry.New()
	fs := store.New(baseDir, peerutil.PeerID(1), reg)
	self := peerutil.Endpoint{Host: "127.0.0.1", Port: 30010}
	disc := discovery.New(self, fs, reg)
	xfer := transfer.New(self, 1<<20, fs, fs)

	o := New(peerutil.PeerID(1), baseDir, fs, reg, disc, xfer)

	if err := o.RequestFile(context.Background(), "absent.bin"); err == nil {
		t.Fatal("expected error for missing metadata sidecar")
	}
}
