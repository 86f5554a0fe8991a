// Package broadcast fans outbound frames out to connected sockets.
//
// SCOPES:
//   - Global:  every registered client
//   - Room:    clients that joined a named room ("admin", "stats")
//   - Unicast: one client by connection id
//
// DELIVERY:
// A frame is encoded once and enqueued on each recipient's bounded queue.
// Enqueueing never blocks: if a client's queue is full the frame is dropped
// for that client only and counted. Each socket's writer goroutine drains its
// own queue, so one slow reader cannot stall a broadcast.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Room is a named multicast scope.
type Room string

const (
	RoomAdmin Room = "admin"
	RoomStats Room = "stats"
)

// DefaultQueueSize is the per-client outbound queue length.
const DefaultQueueSize = 256

// Message is the JSON envelope every frame travels in.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Encode marshals a message into a frame.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Client is one registered socket.
type Client struct {
	id        string
	subjectID string
	send      chan []byte
	rooms     map[Room]struct{} // guarded by Hub.mu
}

// ID is the connection id.
func (c *Client) ID() string { return c.id }

// SubjectID is the identity behind the socket, empty for anonymous observers.
func (c *Client) SubjectID() string { return c.subjectID }

// Frames is drained by the socket writer. It is closed on Unregister.
func (c *Client) Frames() <-chan []byte { return c.send }

// Options configures a Hub.
type Options struct {
	QueueSize int
	// OnDrop is called once per frame dropped for a full queue.
	OnDrop func(msgType string)
	// OnPresence is called with the number of distinct identities whenever
	// that number changes. It runs outside the hub lock, one call at a time,
	// and always sees the count as of the call.
	OnPresence func(distinct int)
}

// Hub tracks clients and rooms.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	rooms    map[Room]map[string]*Client
	subjects map[string]int // subject id → open sockets

	presenceMu sync.Mutex // serializes onPresence calls

	queueSize  int
	onDrop     func(string)
	onPresence func(int)
	dropped    atomic.Uint64

	logger *slog.Logger
}

func NewHub(logger *slog.Logger, opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[Room]map[string]*Client),
		subjects:   make(map[string]int),
		queueSize:  opts.QueueSize,
		onDrop:     opts.OnDrop,
		onPresence: opts.OnPresence,
		logger:     logger,
	}
}

// SetPresenceHook replaces the presence callback. Call it before any client registers.
func (h *Hub) SetPresenceHook(fn func(distinct int)) {
	h.mu.Lock()
	h.onPresence = fn
	h.mu.Unlock()
}

// Register adds a client. subjectID may be empty.
func (h *Hub) Register(id, subjectID string) *Client {
	c := &Client{
		id:        id,
		subjectID: subjectID,
		send:      make(chan []byte, h.queueSize),
		rooms:     make(map[Room]struct{}),
	}

	h.mu.Lock()
	h.clients[id] = c
	changed := false
	if subjectID != "" {
		h.subjects[subjectID]++
		changed = h.subjects[subjectID] == 1
	}
	h.mu.Unlock()

	h.logger.Debug("client registered",
		slog.String("client_id", id),
		slog.String("user_id", subjectID),
	)
	if changed {
		h.notifyPresence()
	}
	return c
}

// Unregister removes a client from every room and closes its queue.
// Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	changed := false
	if c.subjectID != "" {
		h.subjects[c.subjectID]--
		if h.subjects[c.subjectID] <= 0 {
			delete(h.subjects, c.subjectID)
			changed = true
		}
	}
	close(c.send)
	h.mu.Unlock()

	h.logger.Debug("client unregistered", slog.String("client_id", c.id))
	if changed {
		h.notifyPresence()
	}
}

// notifyPresence reads the distinct count under presenceMu, so when a
// Register and an Unregister race, the last hook call carries the final count.
func (h *Hub) notifyPresence() {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.RLock()
	distinct := len(h.subjects)
	hook := h.onPresence
	h.mu.RUnlock()

	if hook != nil {
		hook(distinct)
	}
}

// Join adds a client to a room. Joining twice is a no-op; it reports
// whether the client was newly added.
func (h *Hub) Join(clientID string, room Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if _, in := c.rooms[room]; in {
		return false
	}
	c.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[clientID] = c
	return true
}

// Leave removes a client from a room.
func (h *Hub) Leave(clientID string, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether the client is a member of room.
func (h *Hub) InRoom(clientID string, room Room) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][clientID]
	return ok
}

// Global sends msg to every client.
func (h *Hub) Global(msg Message) {
	frame, ok := h.encode(msg)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, msg.Type, frame)
	}
}

// Room sends msg to every member of room.
func (h *Hub) Room(room Room, msg Message) {
	frame, ok := h.encode(msg)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		h.enqueue(c, msg.Type, frame)
	}
}

// Unicast sends msg to one client and reports whether it was enqueued.
func (h *Hub) Unicast(clientID string, msg Message) bool {
	frame, ok := h.encode(msg)
	if !ok {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	return h.enqueue(c, msg.Type, frame)
}

// ClientIDsFor lists the open connections of one identity, sorted.
func (h *Hub) ClientIDsFor(subjectID string) []string {
	h.mu.RLock()
	var ids []string
	for id, c := range h.clients {
		if c.subjectID == subjectID {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Clients is the number of registered sockets.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subjects is the number of distinct identities with at least one socket.
func (h *Hub) Subjects() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subjects)
}

// Dropped is the total number of frames dropped for full queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) encode(msg Message) ([]byte, bool) {
	frame, err := Encode(msg)
	if err != nil {
		h.logger.Error("failed to encode frame",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return frame, true
}

// enqueue must be called with h.mu held (read or write) so the queue cannot
// be closed underneath it.
func (h *Hub) enqueue(c *Client, msgType string, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.dropped.Add(1)
		if h.onDrop != nil {
			h.onDrop(msgType)
		}
		h.logger.Warn("outbound queue full; frame dropped",
			slog.String("client_id", c.id),
			slog.String("type", msgType),
		)
		return false
	}
}
