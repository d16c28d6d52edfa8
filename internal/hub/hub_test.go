package hub

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

// fakeSender records sends and closes for assertions.
type fakeSender struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  int
	sendErr error
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSender) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSender) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestHub_SendTo(t *testing.T) {
	t.Run("delivers to registered device", func(t *testing.T) {
		h := New()
		s := &fakeSender{}
		h.Register("dev-1", s)

		if err := h.SendTo("dev-1", []byte("hello")); err != nil {
			t.Fatalf("SendTo() error = %v", err)
		}
		if s.frameCount() != 1 {
			t.Errorf("frames delivered = %d, want 1", s.frameCount())
		}
	})

	t.Run("offline device", func(t *testing.T) {
		h := New()
		if err := h.SendTo("ghost", []byte("x")); !errors.Is(err, ErrDeviceOffline) {
			t.Errorf("SendTo() error = %v, want ErrDeviceOffline", err)
		}
	})

	t.Run("offline after unregister", func(t *testing.T) {
		h := New()
		s := &fakeSender{}
		h.Register("dev-1", s)
		h.Unregister("dev-1", s)

		if err := h.SendTo("dev-1", []byte("x")); !errors.Is(err, ErrDeviceOffline) {
			t.Errorf("SendTo() error = %v, want ErrDeviceOffline", err)
		}
	})
}

func TestHub_Register_Supersede(t *testing.T) {
	h := New()
	old := &fakeSender{}
	h.Register("dev-1", old)

	replacement := &fakeSender{}
	h.Register("dev-1", replacement)

	if old.closedCount() != 1 {
		t.Errorf("superseded connection closed %d times, want 1", old.closedCount())
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}

	// Frames must now flow to the replacement only.
	if err := h.SendTo("dev-1", []byte("x")); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if replacement.frameCount() != 1 || old.frameCount() != 0 {
		t.Errorf("frames: replacement=%d old=%d, want 1/0",
			replacement.frameCount(), old.frameCount())
	}
}

func TestHub_Unregister(t *testing.T) {
	t.Run("double unregister is a no-op", func(t *testing.T) {
		h := New()
		s := &fakeSender{}
		h.Register("dev-1", s)
		h.Unregister("dev-1", s)
		h.Unregister("dev-1", s)

		if h.Count() != 0 {
			t.Errorf("Count() = %d, want 0", h.Count())
		}
	})

	t.Run("superseded connection cannot knock out its replacement", func(t *testing.T) {
		h := New()
		old := &fakeSender{}
		h.Register("dev-1", old)
		replacement := &fakeSender{}
		h.Register("dev-1", replacement)

		// The old connection's teardown runs after the replacement arrived.
		h.Unregister("dev-1", old)

		if !h.IsOnline("dev-1") {
			t.Error("device went offline after stale unregister")
		}
	})
}

func TestHub_Broadcast(t *testing.T) {
	h := New()
	good1 := &fakeSender{}
	good2 := &fakeSender{}
	bad := &fakeSender{sendErr: errors.New("wedged")}
	h.Register("a", good1)
	h.Register("b", bad)
	h.Register("c", good2)

	sent := h.Broadcast([]byte("news"))
	if sent != 2 {
		t.Errorf("Broadcast() sent = %d, want 2", sent)
	}
	if good1.frameCount() != 1 || good2.frameCount() != 1 {
		t.Error("healthy connections missed the broadcast")
	}
}

func TestHub_DeviceIDs(t *testing.T) {
	h := New()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		h.Register(id, &fakeSender{})
	}

	got := h.DeviceIDs()
	want := []string{"alpha", "bravo", "charlie"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeviceIDs() = %v, want %v", got, want)
	}
}

func TestHub_CloseAll(t *testing.T) {
	h := New()
	s1 := &fakeSender{}
	s2 := &fakeSender{}
	h.Register("a", s1)
	h.Register("b", s2)

	h.CloseAll()

	if h.Count() != 0 {
		t.Errorf("Count() = %d after CloseAll, want 0", h.Count())
	}
	if s1.closedCount() != 1 || s2.closedCount() != 1 {
		t.Errorf("closed counts = %d/%d, want 1/1", s1.closedCount(), s2.closedCount())
	}
}
