package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"zplink/engine"
	"zplink/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected event stream.
type wsClient struct {
	id     string
	events chan engine.Event
}

// eventHub manages websocket clients and broadcasts engine events.
type eventHub struct {
	clients    map[string]*wsClient
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan engine.Event
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
}

func newEventHub() *eventHub {
	hub := &eventHub{
		clients:    make(map[string]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan engine.Event, 256),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

func (h *eventHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.events)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.events <- ev:
				default:
					logging.DebugLog("api", "client %s buffer full, dropping %s event", client.id, ev.Type)
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.events)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues ev for every client without blocking the caller.
func (h *eventHub) Broadcast(ev engine.Event) {
	select {
	case h.broadcast <- ev:
	default:
		logging.DebugLog("api", "broadcast channel full, dropping %s event", ev.Type)
	}
}

func (h *eventHub) add(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *eventHub) remove(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *eventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *eventHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// connectedMessage is the first frame sent on a new stream.
type connectedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// handleEvents serves /api/events/ws. The optional types query parameter
// is a comma-separated list of event names to receive.
func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	var typeFilter map[string]bool
	if types := r.URL.Query().Get("types"); types != "" {
		typeFilter = make(map[string]bool)
		for _, t := range strings.Split(types, ",") {
			typeFilter[strings.TrimSpace(t)] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.DebugLog("api", "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{
		id:     ulid.Make().String(),
		events: make(chan engine.Event, 64),
	}
	if !h.hub.add(client) {
		return
	}

	// The read loop only services control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(connectedMessage{Type: "connected", ID: client.id}); err != nil {
		h.hub.remove(client)
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.hub.remove(client)
			return

		case ev, ok := <-client.events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if typeFilter != nil && !typeFilter[ev.Type.String()] {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				logging.DebugLog("api", "client %s write failed: %v", client.id, err)
				h.hub.remove(client)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				h.hub.remove(client)
				return
			}
		}
	}
}

// setupEvents forwards engine events to the hub. Returns a cleanup function
// that unsubscribes and stops the hub.
func (h *handlers) setupEvents() func() {
	h.subID = h.engine.Events.Subscribe(h.hub.Broadcast)
	return func() {
		h.engine.Events.Unsubscribe(h.subID)
		h.hub.Stop()
	}
}
