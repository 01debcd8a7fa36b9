package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Manager fans status events out to connected dashboard clients.
type Manager struct {
	mu          sync.RWMutex
	connections map[*connection]struct{}
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

type connection struct {
	conn *websocket.Conn
	send chan interface{}
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleConnection upgrades an HTTP request and tracks the connection until
// it closes.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{conn: ws, send: make(chan interface{}, 64)}

	m.mu.Lock()
	m.connections[c] = struct{}{}
	m.mu.Unlock()

	go m.writeLoop(c)
	go m.readLoop(c)
}

// Broadcast queues an event for every connected client. Slow clients are
// dropped rather than allowed to block the sender.
func (m *Manager) Broadcast(event interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.connections {
		select {
		case c.send <- event:
		default:
			go m.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) writeLoop(c *connection) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(event); err != nil {
				m.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.remove(c)
				return
			}
		}
	}
}

func (m *Manager) readLoop(c *connection) {
	defer m.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *Manager) remove(c *connection) {
	m.mu.Lock()
	if _, ok := m.connections[c]; ok {
		delete(m.connections, c)
		close(c.send)
	}
	m.mu.Unlock()
	c.conn.Close()
}
