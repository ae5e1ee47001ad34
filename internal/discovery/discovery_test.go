package discovery

import (
	"testing"
	"time"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
)

type fakeStore struct {
	chunks map[int]struct{}
}

func (f *fakeStore) AvailableChunks(fileName string) []int {
	ids := make([]int, 0, len(f.chunks))
	for id := range f.chunks {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeStore) HasChunk(fileName string, chunkID int) bool {
	_, ok := f.chunks[chunkID]
	return ok
}

func newTestService(store LocalStore) *Service {
	self := peerutil.Endpoint{Host: "127.0.0.1", Port: 19001}
	return New(self, store, registry.New())
}

func TestWindowStartsClosed(t *testing.T) {
	s := newTestService(&fakeStore{chunks: map[int]struct{}{}})
	s.windowMu.Lock()
	active := s.window["movie.mp4"]
	s.windowMu.Unlock()
	if active {
		t.Fatal("window should be closed before StartDiscovery is called")
	}
}

func TestHandleResponseDroppedOutsideWindow(t *testing.T) {
	s := newTestService(&fakeStore{chunks: map[int]struct{}{}})
	s.handleResponse([]string{"RESPONSE", "movie.mp4", "100", "0", "1"}, peerutil.Endpoint{Host: "10.0.0.2", Port: 9002})

	snap := s.reg.Snapshot("movie.mp4")
	if len(snap) != 0 {
		t.Fatalf("expected no records absorbed while window closed, got %v", snap)
	}
}

func TestHandleResponseAbsorbedInsideWindow(t *testing.T) {
	s := newTestService(&fakeStore{chunks: map[int]struct{}{}})
	s.reg.Begin("movie.mp4", 2)
	s.windowMu.Lock()
	s.window["movie.mp4"] = true
	s.windowMu.Unlock()

	from := peerutil.Endpoint{Host: "10.0.0.2", Port: 9002}
	s.handleResponse([]string{"RESPONSE", "movie.mp4", "100", "0", "1"}, from)

	snap := s.reg.Snapshot("movie.mp4")
	if len(snap) != 2 || len(snap[0]) != 1 || len(snap[1]) != 1 {
		t.Fatalf("expected both chunks recorded against %v, got %v", from, snap)
	}
}

func TestHandleResponseSkipsChunksAlreadyHeld(t *testing.T) {
	s := newTestService(&fakeStore{chunks: map[int]struct{}{0: {}}})
	s.reg.Begin("movie.mp4", 2)
	s.windowMu.Lock()
	s.window["movie.mp4"] = true
	s.windowMu.Unlock()

	s.handleResponse([]string{"RESPONSE", "movie.mp4", "100", "0", "1"}, peerutil.Endpoint{Host: "10.0.0.2", Port: 9002})

	snap := s.reg.Snapshot("movie.mp4")
	if len(snap[0]) != 0 {
		t.Fatalf("chunk already held locally should not be recorded: %v", snap[0])
	}
	if len(snap[1]) != 1 {
		t.Fatalf("missing chunk should be recorded: %v", snap[1])
	}
}

func TestHandleDiscoveryIgnoresSelfOrigin(t *testing.T) {
	s := newTestService(&fakeStore{chunks: map[int]struct{}{0: {}}})
	s.handleDiscovery([]string{"DISCOVERY", "movie.mp4", "1", "2", s.self.String()}, s.self)
	// No assertion beyond "does not panic and does not forward": self-originated
	// floods must be dropped immediately.
}

func TestWaitResponsesClosesWindow(t *testing.T) {
	s := newTestService(&fakeStore{chunks: map[int]struct{}{}})
	savedWindow := ResponseWindow
	_ = savedWindow
	s.windowMu.Lock()
	s.window["movie.mp4"] = true
	s.windowMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.WaitResponses("movie.mp4")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ResponseWindow + 5*time.Second):
		t.Fatal("WaitResponses did not return in time")
	}

	s.windowMu.Lock()
	active := s.window["movie.mp4"]
	s.windowMu.Unlock()
	if active {
		t.Fatal("window should be closed after WaitResponses returns")
	}
}
