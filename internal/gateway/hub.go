package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/dialdesk/internal/domain"
	"github.com/soyeahso/dialdesk/internal/logging"
)

const (
	hubSendBuffer  = 64
	hubWriteWait   = 10 * time.Second
	hubPingPeriod  = 30 * time.Second
	hubMaxReadSize = 4096
)

// Event is one dashboard feed message.
type Event struct {
	Type  string        `json:"type"`
	TS    time.Time     `json:"ts"`
	Call  *domain.Call  `json:"call,omitempty"`
	Agent *domain.Agent `json:"agent,omitempty"`
}

// Hub fans call and agent updates out to connected dashboard clients. A
// client that cannot keep up with the feed is dropped rather than allowed
// to block the rest.
type Hub struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		log:     log.Sub("hub"),
		clients: make(map[*hubClient]struct{}),
	}
}

// CallUpdated broadcasts a call lifecycle change. Implements
// routing.Notifier; must not block.
func (h *Hub) CallUpdated(call *domain.Call) {
	h.broadcast(Event{Type: "call_updated", TS: time.Now().UTC(), Call: call})
}

// AgentUpdated broadcasts an agent availability change.
func (h *Hub) AgentUpdated(agent *domain.Agent) {
	h.broadcast(Event{Type: "agent_updated", TS: time.Now().UTC(), Agent: agent})
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// Serve owns an upgraded connection until it closes. The read loop exists
// only to notice disconnects; the feed is one-way.
func (h *Hub) Serve(conn *websocket.Conn) {
	client := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", total).Msg("dashboard client connected")

	go client.writePump()

	conn.SetReadLimit(hubMaxReadSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(client)
}

func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if present {
		close(client.send)
	}
}

func (h *Hub) broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("encoding feed event")
		return
	}

	h.mu.Lock()
	var slow []*hubClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		close(c.send)
		h.log.Warn().Msg("dropping slow dashboard client")
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
