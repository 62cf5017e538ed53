package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hanakoi/backend/internal/auth"
	"github.com/hanakoi/backend/internal/middleware"
	"github.com/hanakoi/backend/internal/session"
)

// MintHandoff handles POST /handoff under RequireSession. It issues a
// short-lived token binding the caller to their current game so another
// instance can accept the websocket without re-resolving the session.
func MintHandoff(handoff *auth.Handoff, games *session.GameStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetString(middleware.PlayerIDKey)

		gameID, ok := games.GameFor(playerID)
		if !ok {
			c.JSON(http.StatusConflict, gin.H{"error": "no active game"})
			return
		}

		token, err := handoff.Create(playerID, gameID)
		if err != nil {
			log.Printf("[API] Failed to mint handoff token for %s: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"game_id": gameID,
		})
	}
}
