package hub

import (
	"fmt"
	"sort"
	"sync"
)

// Sender is one device's outbound channel. Send must be safe to call from
// any goroutine; Close must be safe to call more than once.
type Sender interface {
	Send(data []byte) error
	Close()
}

// Logger defines the logging interface used by the Hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hub maps device IDs to their live connections.
//
// All public methods are thread-safe.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Sender
	logger Logger
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		conns:  make(map[string]Sender),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Register binds a device ID to its connection. If the device already has
// a registered connection it is superseded and closed.
func (h *Hub) Register(deviceID string, s Sender) {
	h.mu.Lock()
	old, existed := h.conns[deviceID]
	h.conns[deviceID] = s
	h.mu.Unlock()

	if existed && old != s {
		old.Close()
		h.logger.Warn("superseded stale connection", "device_id", deviceID)
	}
	h.logger.Debug("device registered", "device_id", deviceID, "online", h.Count())
}

// Unregister removes a device's connection, but only if s is still the
// registered one. A connection that was superseded unregistering late must
// not knock out its replacement. Unregistering twice is a no-op.
func (h *Hub) Unregister(deviceID string, s Sender) {
	h.mu.Lock()
	current, existed := h.conns[deviceID]
	if existed && current == s {
		delete(h.conns, deviceID)
	} else {
		existed = false
	}
	h.mu.Unlock()

	if existed {
		h.logger.Debug("device unregistered", "device_id", deviceID, "online", h.Count())
	}
}

// SendTo pushes a frame to one device.
// Returns ErrDeviceOffline if the device has no live connection.
func (h *Hub) SendTo(deviceID string, data []byte) error {
	h.mu.RLock()
	s, ok := h.conns[deviceID]
	h.mu.RUnlock()

	if !ok {
		return ErrDeviceOffline
	}
	if err := s.Send(data); err != nil {
		return fmt.Errorf("sending to %s: %w", deviceID, err)
	}
	return nil
}

// Broadcast pushes a frame to every online device and returns how many
// sends succeeded. Per-device failures are logged, not fatal: one wedged
// connection must not stop the rest of the fleet hearing the news.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	conns := make(map[string]Sender, len(h.conns))
	for id, s := range h.conns {
		conns[id] = s
	}
	h.mu.RUnlock()

	sent := 0
	for id, s := range conns {
		if err := s.Send(data); err != nil {
			h.logger.Warn("broadcast send failed", "device_id", id, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// IsOnline reports whether a device has a live connection.
func (h *Hub) IsOnline(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[deviceID]
	return ok
}

// DeviceIDs returns the IDs of all online devices, sorted.
func (h *Hub) DeviceIDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Count returns the number of online devices.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll disconnects every device, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Sender)
	h.mu.Unlock()

	for _, s := range conns {
		s.Close()
	}
}
