package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hanakoi/backend/internal/auth"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/session"
)

// SessionCookieName is the cookie carrying the opaque session id
const SessionCookieName = "hk_session"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Handler upgrades connections and runs the per-connection pumps
type Handler struct {
	manager  *Manager
	sessions *session.Service
	store    *identity.SessionStore
	handoff  *auth.Handoff
}

// NewHandler creates the websocket endpoint handler
func NewHandler(manager *Manager, sessions *session.Service, store *identity.SessionStore, handoff *auth.Handoff) *Handler {
	return &Handler{
		manager:  manager,
		sessions: sessions,
		store:    store,
		handoff:  handoff,
	}
}

// Serve handles GET /api/v1/ws. Authentication comes from the session cookie,
// a session query parameter, or a handoff token. The upgrade always happens
// first so an invalid credential can be answered with close code 4002.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	playerID, err := h.authenticate(c)
	if err != nil {
		log.Printf("[WS] Rejecting connection: %v", err)
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseInvalidSession, "invalid session"), deadline)
		conn.Close()
		return
	}

	client := h.manager.Register(playerID, conn)
	go client.writePump()

	// Replay the current game to a returning player before any new events
	h.sessions.HandleConnect(playerID)

	h.readPump(client)
}

// authenticate resolves the caller's player id from whichever credential the
// request carries.
func (h *Handler) authenticate(c *gin.Context) (string, error) {
	if token := c.Query("handoff"); token != "" {
		payload, err := h.handoff.Verify(token)
		if err != nil {
			return "", err
		}
		return payload.PlayerID, nil
	}

	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || sessionID == "" {
		sessionID = c.Query("session")
	}
	if sessionID == "" {
		return "", identity.ErrSessionNotFound
	}
	sess, err := h.store.Resolve(sessionID)
	if err != nil {
		return "", err
	}
	return sess.PlayerID, nil
}

// readPump parses command frames and answers each with a response frame
func (h *Handler) readPump(client *Client) {
	defer h.manager.Unregister(client)

	client.conn.SetReadLimit(16 * 1024)
	client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for player %s: %v", client.playerID, err)
			}
			return
		}

		var frame session.CommandFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("[WS] Malformed frame from player %s: %v", client.playerID, err)
			continue
		}

		resp := h.sessions.HandleCommand(client.playerID, frame)
		client.enqueue(outboundFrame{Kind: "response", Response: &resp})
	}
}
