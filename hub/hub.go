// Package hub fans messages out to WebSocket clients grouped into rooms.
//
// A connection may sit in any number of rooms at once (its own private
// room, the rooms of jobs it is watching, and the global room). Rooms
// are created on first join and deleted when their last member leaves,
// so an idle hub holds no room state.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHeartbeat is how often the hub pings every connection.
const DefaultHeartbeat = 30 * time.Second

// Option configures a Hub.
type Option func(*Hub)

// WithHeartbeat overrides the ping interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) { h.heartbeat = d }
}

// Hub tracks connections and the rooms they belong to, and broadcasts
// messages to room members. Safe for concurrent use.
type Hub struct {
	logger    *slog.Logger
	heartbeat time.Duration

	mu    sync.RWMutex
	rooms map[string]map[string]Conn // room → connID → conn
	conns map[string]Conn            // connID → conn

	// Metrics.
	totalBroadcast atomic.Int64
	totalDropped   atomic.Int64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a hub. Call Start to begin the heartbeat loop.
func New(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:    logger,
		heartbeat: DefaultHeartbeat,
		rooms:     make(map[string]map[string]Conn),
		conns:     make(map[string]Conn),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a connection to the hub without joining any room.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
}

// Join adds a connection to a room, creating the room if needed. The
// connection is registered implicitly.
func (h *Hub) Join(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.ID()] = c
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]Conn)
		h.rooms[roomID] = members
	}
	members[c.ID()] = c
}

// Leave removes a connection from a room. Empty rooms are deleted.
func (h *Hub) Leave(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, connID)
}

func (h *Hub) leaveLocked(roomID, connID string) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// LeaveAll removes a connection from every room and the hub, closing
// the underlying transport.
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	for roomID, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	c, ok := h.conns[connID]
	delete(h.conns, connID)
	h.mu.Unlock()

	if ok {
		c.Close() //nolint:errcheck // already disconnecting
	}
}

// Broadcast marshals msg and sends it to every member of the room,
// skipping any connection IDs in exclude. Returns the number of
// successful deliveries. Send failures are logged and skipped; the
// heartbeat loop reaps dead connections.
func (h *Hub) Broadcast(roomID string, msg any, exclude ...string) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("hub: marshal broadcast", slog.String("room", roomID), slog.Any("error", err))
		return 0
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	// Copy members out so sends happen without the lock held.
	h.mu.RLock()
	members := h.rooms[roomID]
	targets := make([]Conn, 0, len(members))
	for id, c := range members {
		if _, skipped := skip[id]; skipped {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(data); err != nil {
			h.totalDropped.Add(1)
			h.logger.Debug("hub: send failed",
				slog.String("room", roomID),
				slog.String("conn_id", c.ID()),
				slog.Any("error", err))
			continue
		}
		delivered++
	}
	h.totalBroadcast.Add(int64(delivered))
	return delivered
}

// Send delivers a message to a single connection by ID.
func (h *Hub) Send(connID string, msg any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// MemberCount returns the number of connections in a room.
func (h *Hub) MemberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	rooms, conns := len(h.rooms), len(h.conns)
	h.mu.RUnlock()
	return Stats{
		Rooms:          rooms,
		Connections:    conns,
		TotalBroadcast: h.totalBroadcast.Load(),
		TotalDropped:   h.totalDropped.Load(),
	}
}

// Stats contains hub metrics.
type Stats struct {
	Rooms          int   `json:"rooms"`
	Connections    int   `json:"connections"`
	TotalBroadcast int64 `json:"total_broadcast"`
	TotalDropped   int64 `json:"total_dropped"`
}

// Start launches the heartbeat loop.
func (h *Hub) Start() {
	go h.run()
}

// Stop halts the heartbeat and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	<-h.doneCh

	h.mu.Lock()
	for id, c := range h.conns {
		c.Close() //nolint:errcheck // shutting down
		delete(h.conns, id)
	}
	h.rooms = make(map[string]map[string]Conn)
	h.mu.Unlock()
}

func (h *Hub) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep pings every connection and reaps those silent for longer than
// two heartbeat cycles.
func (h *Hub) sweep() {
	cutoff := time.Now().Add(-2 * h.heartbeat)

	h.mu.RLock()
	all := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()

	var dead []string
	for _, c := range all {
		if c.LastSeen().Before(cutoff) {
			dead = append(dead, c.ID())
			continue
		}
		if err := c.Ping(); err != nil {
			dead = append(dead, c.ID())
		}
	}

	for _, id := range dead {
		h.logger.Debug("hub: reaping dead connection", slog.String("conn_id", id))
		h.LeaveAll(id)
	}
}
