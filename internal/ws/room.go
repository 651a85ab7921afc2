package ws

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/manpreetbhatti/focusflow/backend/internal/presence"
	"github.com/manpreetbhatti/focusflow/backend/internal/protocol"
	"github.com/manpreetbhatti/focusflow/backend/internal/workspace"
)

type eventKind int

const (
	eventRegister eventKind = iota
	eventUnregister
	eventOperation
	eventReject
)

// An event queued for a room. Everything a room does goes through one
// inbox so that its order is the order of arrival.
type roomEvent struct {
	kind   eventKind
	client *Client
	op     protocol.Operation
	err    *protocol.Error
}

// The broadcast channel of one workspace
type room struct {
	id    string
	hub   *Hub
	inbox chan roomEvent
	log   *logrus.Entry

	// Subscribed connections by connection id
	clients map[string]*Client

	// Connections whose roster entry went to a newer connection with the
	// same identity. They stay open but get no broadcasts.
	evicted map[string]*Client

	// nil until the first successful load
	ws *workspace.Workspace

	// connections holding this room, guarded by hub.mu
	holders int
}

func newRoom(h *Hub, id string) *room {
	return &room{
		id:      id,
		hub:     h,
		inbox:   make(chan roomEvent, h.config.InboxBuffer),
		log:     h.log.WithField("workspace", id),
		clients: make(map[string]*Client),
		evicted: make(map[string]*Client),
	}
}

// Queues an event. Returns false if the hub is shutting down.
func (r *room) enqueue(ev roomEvent) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-r.hub.ctx.Done():
		return false
	}
}

func (r *room) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case ev := <-r.inbox:
			switch ev.kind {
			case eventRegister:
				r.attach(ctx, ev.client)
			case eventUnregister:
				r.detach(ev.client)
				if r.hub.release(r, r.ws != nil) {
					r.log.Debug("Room retired, workspace was never loaded")
					return
				}
			case eventOperation:
				r.apply(ev.client, ev.op)
			case eventReject:
				r.reject(ev.client, ev.err)
			}
		}
	}
}

func (r *room) attach(ctx context.Context, c *Client) {
	if r.ws == nil {
		w, err := r.hub.persist.EnsureLoaded(ctx, r.id)
		if err != nil {
			r.log.WithError(err).WithField("identity", c.identity).Error("Rejecting connection, workspace failed to load")
			r.sendError(c, protocol.LoadFailed(r.id))
			c.closeSend()
			return
		}
		r.ws = w
	}

	roster, evicted := r.hub.registry.Attach(r.id, c.id, c.identity)
	for _, id := range evicted {
		old, ok := r.clients[id]
		if !ok {
			continue
		}
		delete(r.clients, id)
		r.evicted[id] = old
		old.evicted.Store(true)
		r.log.WithFields(logrus.Fields{
			"identity":   old.identity,
			"connection": id,
		}).Info("Replacing old connection")
		r.sendError(old, protocol.SessionReplaced(old.identity))
	}
	r.clients[c.id] = c

	r.log.WithFields(logrus.Fields{
		"identity":   c.identity,
		"connection": c.id,
		"total":      len(roster),
	}).Info("Client joined workspace")
	r.broadcastRoster(roster)

	snapshot, err := r.ws.Snapshot()
	if err != nil {
		r.log.WithError(err).Error("Failed to snapshot workspace for sync")
		return
	}
	frame, err := protocol.EncodeSync(snapshot)
	if err != nil {
		r.log.WithError(err).Error("Failed to encode sync")
		return
	}
	if !r.deliver(c, frame) {
		r.dropSlow(c)
	}
}

func (r *room) detach(c *Client) {
	if _, ok := r.evicted[c.id]; ok {
		delete(r.evicted, c.id)
		c.closeSend()
		return
	}
	if _, ok := r.clients[c.id]; !ok {
		return
	}

	delete(r.clients, c.id)
	c.closeSend()

	roster, empty := r.hub.registry.Detach(r.id, c.id)
	r.log.WithFields(logrus.Fields{
		"identity":   c.identity,
		"connection": c.id,
		"remaining":  len(roster),
	}).Info("Client left workspace")

	if empty {
		r.log.Info("No users left in workspace, flushing, state is retained")
		r.hub.persist.ScheduleFlush(r.id)
		return
	}
	r.broadcastRoster(roster)
}

func (r *room) apply(c *Client, op protocol.Operation) {
	if _, ok := r.clients[c.id]; !ok {
		if _, stale := r.evicted[c.id]; stale {
			r.sendError(c, protocol.NotAttached(r.id))
		}
		return
	}

	log := r.log.WithFields(logrus.Fields{
		"identity": c.identity,
		"op":       op.Type(),
	})
	if err := r.ws.Apply(op); err != nil {
		log.WithError(err).Warn("Operation skipped")
		r.sendError(c, protocol.InvalidOperation(op.Type(), err.Error()))
		return
	}
	r.hub.persist.MarkDirty(r.id)

	frame, err := protocol.EncodeOperation(op)
	if err != nil {
		log.WithError(err).Error("Failed to encode operation for broadcast")
		return
	}
	log.Debug("Shared state update")
	r.broadcast(frame)
}

func (r *room) reject(c *Client, perr *protocol.Error) {
	r.log.WithFields(logrus.Fields{
		"identity": c.identity,
		"code":     perr.Code,
	}).Warn(perr.Message)
	r.sendError(c, perr)
}

func (r *room) broadcastRoster(roster presence.Roster) {
	frame, err := protocol.EncodeRoster(roster)
	if err != nil {
		r.log.WithError(err).Error("Failed to encode roster")
		return
	}
	r.broadcast(frame)
}

// Sends frame to every subscriber, the originating connection included.
// Subscribers that cannot keep up are detached.
func (r *room) broadcast(frame []byte) {
	var slow []*Client
	for _, c := range r.clients {
		if !r.deliver(c, frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		r.dropSlow(c)
	}
}

func (r *room) dropSlow(c *Client) {
	r.log.WithFields(logrus.Fields{
		"identity":   c.identity,
		"connection": c.id,
	}).Warn("Dropping slow client")
	r.detach(c)
}

func (r *room) deliver(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Sends an error event to a connection the room still owns, or to one it
// is rejecting before closing it.
func (r *room) sendError(c *Client, perr *protocol.Error) {
	if c.isClosed() {
		return
	}
	frame, err := protocol.EncodeError(perr)
	if err != nil {
		r.log.WithError(err).Error("Failed to encode error event")
		return
	}
	r.deliver(c, frame)
}

func (r *room) shutdown() {
	for id, c := range r.clients {
		r.hub.registry.Detach(r.id, id)
		c.closeSend()
	}
	for _, c := range r.evicted {
		c.closeSend()
	}
	r.clients = nil
	r.evicted = nil
}
