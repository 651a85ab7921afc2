package ws

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/manpreetbhatti/focusflow/backend/internal/logging"
	"github.com/manpreetbhatti/focusflow/backend/internal/persistence"
	"github.com/manpreetbhatti/focusflow/backend/internal/presence"
	"github.com/manpreetbhatti/focusflow/backend/internal/ratelimit"
)

type Config struct {
	SendBuffer        int
	InboxBuffer       int
	MaxMessageSize    int64
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:        512,
		InboxBuffer:       256,
		MaxMessageSize:    1024 * 1024,
		MessagesPerSecond: 100,
		MessageBurst:      200,
	}
}

// Hub routes connections to the room of their workspace. Each room is a
// single goroutine that owns the workspace's subscribers, so events of one
// workspace are processed and delivered in arrival order while different
// workspaces never wait on each other.
type Hub struct {
	registry *presence.Registry
	persist  *persistence.Synchronizer
	limiters *ratelimit.ClientLimiters
	config   Config
	log      *logrus.Entry

	// Rooms by workspace id. A room with a resident workspace lives as long
	// as the hub.
	rooms  map[string]*room
	closed bool
	mu     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(registry *presence.Registry, synchronizer *persistence.Synchronizer, config Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: registry,
		persist:  synchronizer,
		limiters: ratelimit.NewClientLimiters(config.MessagesPerSecond, config.MessageBurst),
		config:   config,
		log:      logging.NewLogger("ws"),
		rooms:    make(map[string]*room),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Returns the room of a workspace, starting it on first use, and counts the
// caller as a holder until release. Returns nil once the hub is closed.
func (h *Hub) acquire(workspaceID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	r, ok := h.rooms[workspaceID]
	if !ok {
		r = newRoom(h, workspaceID)
		h.rooms[workspaceID] = r
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			r.run(h.ctx)
		}()
	}
	r.holders++
	return r
}

// Drops one holder of r. A room whose workspace never loaded is removed
// once nobody holds it; the caller must then stop the room. Rooms with a
// resident workspace stay for the life of the hub.
func (h *Hub) release(r *room, loaded bool) (retired bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r.holders--
	if r.holders > 0 || loaded || h.closed {
		return false
	}
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
	return true
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Number of running rooms, loaded or not
func (h *Hub) roomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close stops every room and closes all connections. Attached connections
// are not detached one by one, so no flush is scheduled from here.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	h.limiters.Stop()
	h.log.Info("Hub closed")
}

// Number of workspaces with at least one attached connection
func (h *Hub) GetRoomCount() int {
	return len(h.registry.Workspaces())
}

// Number of attached connections across all workspaces
func (h *Hub) GetClientCount() int {
	total := 0
	for _, n := range h.registry.Workspaces() {
		total += n
	}
	return total
}

// Attached connection count per workspace
func (h *Hub) GetActiveRooms() map[string]int {
	return h.registry.Workspaces()
}
