package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one frame pushed to subscribers: an event name plus a payload,
// mirroring the socket.io-style contract the dashboard consumes.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// LocationUpdate is broadcast once per committed batch with the final
// observation plus the station's static geofence config.
type LocationUpdate struct {
	StationID           string  `json:"stationId"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	DistanceMeters      float64 `json:"distanceMeters"`
	Status              string  `json:"status"`
	AssignedLatitude    float64 `json:"assignedLatitude"`
	AssignedLongitude   float64 `json:"assignedLongitude"`
	AllowedRadiusMeters float64 `json:"allowedRadiusMeters"`
}

// StatusUpdate is broadcast when a station's status changes without a
// location fix, i.e. on OFFLINE demotion by the reconciler.
type StatusUpdate struct {
	StationID string `json:"stationId"`
	Status    string `json:"status"`
}

// Hub fans events out to all connected websocket clients. Delivery is
// best-effort: a client whose send buffer is full is dropped rather than
// allowed to stall the broadcast loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

const clientBuffer = 32

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// Broadcast queues an event for every connected client. Marshal or
// delivery failures are logged and swallowed; they never propagate to
// the caller.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.log.Error("live: marshal event", "event", event, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: drop it instead of blocking everyone else.
			h.dropLocked(c)
		}
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("live: client connected", "clients", h.ClientCount())
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard origins are already filtered by the CORS middleware layer;
	// the websocket endpoint accepts any origin like the original did.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the connection with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("live: upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.add(c)

	go c.writeLoop()
	go h.readLoop(c)
}

func (c *client) writeLoop() {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames; subscribers are listen-only. It exists
// to notice disconnects and unregister the client.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
