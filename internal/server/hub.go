package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"PortView/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Snapshot stream is read-only public data on a local port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans snapshot frames out to connected websocket clients. Slow
// clients are dropped rather than allowed to stall the feed callback.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     zerolog.Logger
	metrics *observability.Metrics
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates an empty hub.
func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		log:     observability.NewLogger("ws"),
		metrics: metrics,
	}
}

// Broadcast queues one frame to every client. Non-blocking per client; a
// full send buffer means the client is too slow and is disconnected.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		if h.metrics != nil {
			h.metrics.WSDrops.Inc()
		}
		h.remove(c)
	}
}

// HandleWS upgrades the connection and registers the client. initial is
// sent immediately so a new client does not wait for the next event.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer), hub: h}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}

	if initial != nil {
		select {
		case c.send <- initial:
		default:
		}
	}

	go c.writePump()
	go c.readPump()
}

// CloseAll disconnects every client, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	// The send channel stays open so a concurrent Broadcast cannot panic;
	// closing the conn makes both pumps exit.
	c.conn.Close()
	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

func (c *wsClient) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The stream is one-way; reads exist only to observe pongs and
	// disconnects.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
