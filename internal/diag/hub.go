package diag

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/emaamul/core/internal/logging"
	syncpkg "github.com/emaamul/core/internal/sync"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin admits clients without an Origin header and pages served from
// the loopback interface.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Envelope wraps every message pushed to clients.
type Envelope struct {
	Type      string        `json:"type"`
	Data      syncpkg.Event `json:"data"`
	Timestamp int64         `json:"timestamp"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu            sync.Mutex
	subscriptions map[string]bool
}

// wants reports whether the client takes events of type t. A client with no
// subscriptions takes everything.
func (c *client) wants(t string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

// Hub fans drain events out to websocket clients.
type Hub struct {
	broadcast  chan Envelope
	register   chan *client
	unregister chan *client
	done       chan struct{}
	once       sync.Once

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub and starts its loop.
func NewHub() *Hub {
	h := &Hub{
		broadcast:  make(chan Envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[string]*client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug("Event stream client connected", map[string]any{"client": c.id, "clients": n})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			msg, err := json.Marshal(env)
			if err != nil {
				logging.Error("Failed to encode event", err)
				continue
			}
			h.mu.Lock()
			for id, c := range h.clients {
				if !c.wants(env.Type) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Too slow; drop the client rather than stall the engine.
					delete(h.clients, id)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues ev for every subscribed client. It never blocks, so it can
// serve as an engine event handler.
func (h *Hub) Publish(ev syncpkg.Event) {
	env := Envelope{Type: string(ev.Type), Data: ev, Timestamp: ev.Time.Unix()}
	select {
	case h.broadcast <- env:
	case <-h.done:
	default:
		logging.Warn("Event stream backlog full, dropping event", map[string]any{"type": env.Type})
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// Handle upgrades the request and streams events to it.
func (h *Hub) Handle(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logging.Warn("Websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	c := &client{
		id:            time.Now().Format("20060102150405.000000") + "-" + ctx.Request.RemoteAddr,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		hub:           h,
		subscriptions: make(map[string]bool),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// clientMessage is what clients send: subscribe, unsubscribe or ping.
type clientMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Event stream read failed", map[string]any{"client": c.id, "error": err.Error()})
			}
			return
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]any{"action": "subscribe_ack", "subscribed": msg.Events})
		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()
		case "ping":
			c.reply(map[string]any{"action": "pong"})
		}
	}
}

func (c *client) reply(body map[string]any) {
	body["timestamp"] = time.Now().Unix()
	msg, _ := json.Marshal(body)

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
