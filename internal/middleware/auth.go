package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hanakoi/backend/internal/identity"
)

// PlayerIDKey is the gin context key holding the authenticated player id
const PlayerIDKey = "player_id"

// SessionCookieName mirrors the cookie the websocket gateway reads
const SessionCookieName = "hk_session"

// RequireSession resolves the caller's session from the cookie or the
// Authorization header and aborts with 401 when neither works.
func RequireSession(store *identity.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, _ := c.Cookie(SessionCookieName)
		if sessionID == "" {
			header := c.GetHeader("Authorization")
			if strings.HasPrefix(header, "Session ") {
				sessionID = strings.TrimPrefix(header, "Session ")
			}
		}
		if sessionID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			c.Abort()
			return
		}

		sess, err := store.Resolve(sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			c.Abort()
			return
		}

		c.Set(PlayerIDKey, sess.PlayerID)
		c.Next()
	}
}
