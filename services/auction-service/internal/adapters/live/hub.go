package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// Client is one websocket viewer of one auction.
type Client struct {
	id        string
	auctionID string
	send      chan []byte
	mu        sync.Mutex
	closed    bool
}

func newClient(auctionID string) *Client {
	return &Client{
		id:        uuid.NewString(),
		auctionID: auctionID,
		send:      make(chan []byte, sendBufferSize),
	}
}

// Send queues a message without blocking. It reports false when the client
// is closed or too slow to keep up.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans live bid events out to the viewers of each auction.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewHub creates a hub. An empty allowedOrigins accepts any origin.
func NewHub(allowedOrigins []string, log logger.Logger) *Hub {
	h := &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: log.With("component", "live_hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.auctionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.auctionID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	h.logger.Debug("Viewer joined", "auction_id", c.auctionID, "client_id", c.id)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.auctionID]
	if ok {
		if _, present := room[c]; present {
			delete(room, c)
			metrics.LiveConnections.Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, c.auctionID)
		}
	}
	h.mu.Unlock()

	c.close()
}

// Publish delivers payload to every viewer of the auction. Viewers whose buffer
// is full are disconnected.
func (h *Hub) Publish(auctionID string, payload []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[auctionID]))
	for c := range h.rooms[auctionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.Send(payload) {
			h.logger.Warn("Dropping slow viewer", "auction_id", auctionID, "client_id", c.id)
			h.unregister(c)
		}
	}
}

// Viewers returns the number of viewers of an auction.
func (h *Hub) Viewers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.unregister(c)
	}
}

// ServeWS upgrades the request and streams the auction's events until the
// viewer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, auctionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := newClient(auctionID)
	h.register(client)

	go h.writePump(conn, client)
	h.readPump(conn, client)
	return nil
}

// writePump owns all writes to conn.
func (h *Hub) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and keeps the read deadline fresh on pongs.
func (h *Hub) readPump(conn *websocket.Conn, c *Client) {
	defer h.unregister(c)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
