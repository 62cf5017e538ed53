// Package ws is the websocket gateway: one connection per player, command
// frames in, gateway events out.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/session"
)

// Close codes used by the gateway
const (
	CloseInvalidSession = 4002
	closeSuperseded     = 4001
)

const sendBufferSize = 64

// Client is one player's live connection
type Client struct {
	conn        *websocket.Conn
	playerID    string
	send        chan []byte
	unsubscribe bus.Unsubscribe

	closeOnce sync.Once
}

// outboundFrame is everything the gateway writes: command responses and
// gateway events share one envelope keyed by kind.
type outboundFrame struct {
	Kind     string                   `json:"kind"` // "event" | "response"
	Event    *bus.GatewayEvent        `json:"event,omitempty"`
	Response *session.CommandResponse `json:"response,omitempty"`
}

// Manager tracks the single live connection per player and bridges the
// player bus onto it.
type Manager struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	players  *bus.PlayerBus
	sessions *session.Service
}

// NewManager creates a connection manager
func NewManager(players *bus.PlayerBus, sessions *session.Service) *Manager {
	return &Manager{
		clients:  make(map[string]*Client),
		players:  players,
		sessions: sessions,
	}
}

// Register binds a connection to a player. A previous connection for the same
// player is closed; the new one wins.
func (m *Manager) Register(playerID string, conn *websocket.Conn) *Client {
	client := &Client{
		conn:     conn,
		playerID: playerID,
		send:     make(chan []byte, sendBufferSize),
	}

	m.mu.Lock()
	prior := m.clients[playerID]
	m.clients[playerID] = client
	m.mu.Unlock()

	if prior != nil {
		log.Printf("[WS] Player %s reconnected, closing previous connection", playerID)
		prior.close(closeSuperseded, "superseded by new connection")
	}

	client.unsubscribe = m.players.Subscribe(playerID, func(ev bus.GatewayEvent) {
		client.enqueue(outboundFrame{Kind: "event", Event: &ev})
	})

	log.Printf("[WS] Player %s connected", playerID)
	return client
}

// Unregister detaches a client. Only the currently registered connection for
// the player is removed; a superseded one leaves the newer client alone.
func (m *Manager) Unregister(client *Client) {
	m.mu.Lock()
	current := m.clients[client.playerID] == client
	if current {
		delete(m.clients, client.playerID)
	}
	m.mu.Unlock()

	if client.unsubscribe != nil {
		client.unsubscribe()
	}
	client.close(websocket.CloseNormalClosure, "")

	if current {
		m.sessions.HandleDisconnect(client.playerID)
		log.Printf("[WS] Player %s disconnected", client.playerID)
	}
}

// ForceDisconnect closes a player's live connection with the given close
// code. Used when the session behind an open socket is invalidated; the
// close frame carries the same 4002 code the handshake path uses. Reports
// whether a connection was closed.
func (m *Manager) ForceDisconnect(playerID string, code int, reason string) bool {
	m.mu.Lock()
	client, ok := m.clients[playerID]
	if ok {
		delete(m.clients, playerID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if client.unsubscribe != nil {
		client.unsubscribe()
	}
	client.close(code, reason)
	m.sessions.HandleDisconnect(playerID)
	log.Printf("[WS] Player %s force-disconnected (%d: %s)", playerID, code, reason)
	return true
}

// Connected reports whether the player has a live connection
func (m *Manager) Connected(playerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[playerID]
	return ok
}

// ConnectionCount returns the number of live connections
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// enqueue marshals and queues a frame; a full buffer drops the frame rather
// than blocking the publisher.
func (c *Client) enqueue(frame outboundFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[WS] Failed to marshal frame for player %s: %v", c.playerID, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] Send buffer full for player %s, dropping frame", c.playerID)
	}
}

// close writes a close frame once and tears the connection down
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		c.conn.Close()
	})
}

// writePump drains the send channel onto the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for player %s: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for player %s: %v", c.playerID, err)
				return
			}
		}
	}
}
