package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/middleware"
	"github.com/hanakoi/backend/internal/models"
	"github.com/hanakoi/backend/internal/session"
)

// Me handles GET /player/me under RequireSession
func Me(players *identity.PlayerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetString(middleware.PlayerIDKey)
		player, err := players.Get(playerID)
		if err != nil {
			if errors.Is(err, identity.ErrPlayerNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
				return
			}
			log.Printf("[API] Failed to load player %s: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, player)
	}
}

// PlayerStats handles GET /player/:id/stats
func PlayerStats(repo *session.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.Param("id")
		stats, err := repo.LoadStats(playerID)
		if err != nil {
			log.Printf("[API] Failed to load stats for player %s: %v", playerID, err)
			stats = &models.PlayerStatsRow{PlayerID: playerID}
		}
		c.JSON(http.StatusOK, gin.H{
			"player_id":    stats.PlayerID,
			"wins":         stats.Wins,
			"losses":       stats.Losses,
			"draws":        stats.Draws,
			"total_points": stats.TotalPoints,
		})
	}
}

// GameRecord handles GET /game/:id: the durable game row plus its event log
func GameRecord(repo *session.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID := c.Param("id")
		row, err := repo.LoadGame(gameID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		logs, err := repo.LoadLogs(gameID)
		if err != nil {
			log.Printf("[API] Failed to load log for game %s: %v", gameID, err)
		}
		c.JSON(http.StatusOK, gin.H{"game": row, "log": logs})
	}
}
