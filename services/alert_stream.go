package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"gatilho_backend/models"

	"github.com/gorilla/websocket"
)

// WebSocket hub configuration
const (
	MaxWebSocketClients   = 100
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
)

// AlertEvent is the structured live-push payload delivered when an alert
// triggers.
type AlertEvent struct {
	Type         string           `json:"type"`
	AlertID      uint             `json:"alert_id"`
	Ticker       string           `json:"ticker"`
	AlertType    models.AlertType `json:"alert_type"`
	Condition    models.Condition `json:"condition"`
	TargetValue  float64          `json:"target_value"`
	CurrentValue float64          `json:"current_value"`
	TriggeredAt  string           `json:"triggered_at"`
}

// wsClient is one open connection belonging to a user
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// AlertStreamService delivers trigger events to the owning user's open
// WebSocket connections. The registry is keyed by user id; a user may hold
// several connections and disconnecting one leaves the others registered.
type AlertStreamService struct {
	clients    map[uint]map[*wsClient]bool
	total      int
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewAlertStreamService creates the hub and starts its dispatch loop
func NewAlertStreamService() *AlertStreamService {
	s := &AlertStreamService{
		clients:    make(map[uint]map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	go s.run()
	return s
}

// run owns registry mutations
func (s *AlertStreamService) run() {
	for {
		select {
		case <-s.shutdown:
			return

		case client := <-s.register:
			s.mu.Lock()
			if s.total >= MaxWebSocketClients {
				s.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.Printf("WebSocket client rejected: max clients reached (%d)", MaxWebSocketClients)
				continue
			}
			if s.clients[client.userID] == nil {
				s.clients[client.userID] = make(map[*wsClient]bool)
			}
			s.clients[client.userID][client] = true
			s.total++
			total := s.total
			s.mu.Unlock()
			log.Printf("WebSocket client connected for user %d. Total clients: %d", client.userID, total)

		case client := <-s.unregister:
			s.mu.Lock()
			if conns, ok := s.clients[client.userID]; ok && conns[client] {
				delete(conns, client)
				if len(conns) == 0 {
					delete(s.clients, client.userID)
				}
				s.total--
				close(client.send)
			}
			total := s.total
			s.mu.Unlock()
			log.Printf("WebSocket client disconnected for user %d. Total clients: %d", client.userID, total)
		}
	}
}

// Shutdown closes every open connection and stops the hub
func (s *AlertStreamService) Shutdown() {
	close(s.shutdown)

	s.mu.Lock()
	for _, conns := range s.clients {
		for client := range conns {
			close(client.send)
			client.conn.Close()
		}
	}
	s.clients = make(map[uint]map[*wsClient]bool)
	s.total = 0
	s.mu.Unlock()

	log.Println("Alert stream shutdown complete")
}

// HandleConnection upgrades an authenticated request and starts the pumps
func (s *AlertStreamService) HandleConnection(w http.ResponseWriter, r *http.Request, userID uint) {
	s.mu.RLock()
	atCapacity := s.total >= MaxWebSocketClients
	s.mu.RUnlock()

	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	s.register <- client

	go client.writePump()
	go client.readPump(s)
}

// PushAlert queues event to every open connection of userID. Having no open
// connection is normal, not an error.
func (s *AlertStreamService) PushAlert(userID uint, event AlertEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling alert event: %v", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients[userID] {
		select {
		case client.send <- data:
		default:
			// Client buffer full, drop the event for this connection
		}
	}
}

// ClientCount returns the number of open connections for a user
func (s *AlertStreamService) ClientCount(userID uint) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID])
}

// TotalClients returns the number of open connections across all users
func (s *AlertStreamService) TotalClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// writePump writes queued messages and protocol pings to the connection
func (c *wsClient) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client messages. The only application-level message is
// the "ping" heartbeat, answered with "pong"; it carries no alert semantics.
func (c *wsClient) readPump(s *AlertStreamService) {
	defer func() {
		// After Shutdown nobody drains unregister; don't park forever
		select {
		case s.unregister <- c:
		case <-s.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		if string(message) == "ping" {
			c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
			select {
			case c.send <- []byte("pong"):
			default:
			}
		}
	}
}
