package ws

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/manpreetbhatti/focusflow/backend/internal/protocol"
	"github.com/manpreetbhatti/focusflow/backend/internal/ratelimit"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one attached connection
type Client struct {
	hub         *Hub
	room        *room
	conn        *websocket.Conn
	send        chan []byte
	id          string
	workspaceID string
	identity    string
	rateLimiter *ratelimit.Limiter
	log         *logrus.Entry

	// set by the room when a newer connection took over the identity; from
	// then on reads are charged to staleLimiter, owned by the read pump
	evicted      atomic.Bool
	staleLimiter *ratelimit.Limiter

	// owned by the room goroutine
	closed bool
}

// Closes the send queue once; the write pump then closes the connection.
// Only the room goroutine calls this.
func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) isClosed() bool {
	return c.closed
}

// ServeWs attaches a connection to the workspace named by the workspaceId
// query parameter under the identity given by username. Both are required.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	username := r.URL.Query().Get("username")
	if workspaceID == "" || username == "" {
		hub.log.WithField("remote", r.RemoteAddr).Warn("Connection rejected: missing username or workspaceId")
		http.Error(w, "workspaceId and username are required", http.StatusBadRequest)
		return
	}

	if hub.isClosed() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Warn("Upgrade error")
		return
	}

	room := hub.acquire(workspaceID)
	if room == nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server is shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	id := uuid.NewString()
	client := &Client{
		hub:         hub,
		room:        room,
		conn:        conn,
		send:        make(chan []byte, hub.config.SendBuffer),
		id:          id,
		workspaceID: workspaceID,
		identity:    username,
		rateLimiter: hub.limiters.Get(ratelimit.Key(workspaceID, username)),
		log: hub.log.WithFields(logrus.Fields{
			"workspace":  workspaceID,
			"identity":   username,
			"connection": id,
		}),
	}

	if !room.enqueue(roomEvent{kind: eventRegister, client: client}) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.room.enqueue(roomEvent{kind: eventUnregister, client: c})
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		if !c.limiter().Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.WithField("warnings", rateLimitWarnings).Warn("Rate limit exceeded")
				if !c.room.enqueue(roomEvent{kind: eventReject, client: c, err: protocol.RateLimited()}) {
					return
				}
			}
			if rateLimitWarnings > 1000 {
				c.log.Warn("Disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		ev := c.decode(message)
		if !c.room.enqueue(ev) {
			return
		}
	}
}

// The bucket this connection's reads are charged to. A replaced connection
// stops spending the bucket it shares with its replacement.
func (c *Client) limiter() *ratelimit.Limiter {
	if !c.evicted.Load() {
		return c.rateLimiter
	}
	if c.staleLimiter == nil {
		c.staleLimiter = ratelimit.NewLimiter(c.hub.config.MessagesPerSecond, c.hub.config.MessageBurst)
	}
	return c.staleLimiter
}

// Turns a raw frame into the room event it asks for
func (c *Client) decode(message []byte) roomEvent {
	reject := func(err error) roomEvent {
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			perr = protocol.InvalidMessage(err.Error())
		}
		return roomEvent{kind: eventReject, client: c, err: perr}
	}

	env, err := protocol.ParseEnvelope(message)
	if err != nil {
		return reject(err)
	}
	if env.Event != protocol.EventSharedStateUpdate {
		return reject(protocol.InvalidMessage("unsupported event " + env.Event).WithDetail("event", env.Event))
	}

	op, err := protocol.Decode(env.Data)
	if err != nil {
		return reject(err)
	}
	return roomEvent{kind: eventOperation, client: c, op: op}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
