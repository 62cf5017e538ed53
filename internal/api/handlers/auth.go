package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/hanakoi/backend/internal/config"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/middleware"
	"github.com/hanakoi/backend/internal/ws"
)

type authResponse struct {
	Player    *identity.Player `json:"player"`
	SessionID string           `json:"session_id"`
	Token     string           `json:"token"`
}

// issueCredentials creates a session, mints the API JWT, and sets the cookie
func issueCredentials(c *gin.Context, cfg *config.Config, sessions *identity.SessionStore, player *identity.Player) (*authResponse, error) {
	sess, err := sessions.Create(player.ID)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{
		"sub":  player.ID,
		"name": player.DisplayName,
		"exp":  time.Now().Add(time.Duration(cfg.SessionTTLDays) * 24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return nil, err
	}

	maxAge := cfg.SessionTTLDays * 24 * 60 * 60
	secure := cfg.Environment == "production"
	c.SetCookie(middleware.SessionCookieName, sess.ID, maxAge, "/", "", secure, true)

	return &authResponse{Player: player, SessionID: sess.ID, Token: token}, nil
}

// Register handles POST /auth/register
func Register(cfg *config.Config, players *identity.PlayerStore, sessions *identity.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayName string `json:"display_name"`
			Password    string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name and password required"})
			return
		}
		req.DisplayName = strings.TrimSpace(req.DisplayName)
		if req.DisplayName == "" || len(req.Password) < 8 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name and a password of at least 8 characters required"})
			return
		}

		player, err := players.Register(req.DisplayName, req.Password)
		if err != nil {
			if errors.Is(err, identity.ErrNameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "display name already taken"})
				return
			}
			log.Printf("[API] Register failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		resp, err := issueCredentials(c, cfg, sessions, player)
		if err != nil {
			log.Printf("[API] Failed to issue credentials: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// Login handles POST /auth/login
func Login(cfg *config.Config, players *identity.PlayerStore, sessions *identity.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayName string `json:"display_name"`
			Password    string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name and password required"})
			return
		}

		player, err := players.Authenticate(strings.TrimSpace(req.DisplayName), req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		resp, err := issueCredentials(c, cfg, sessions, player)
		if err != nil {
			log.Printf("[API] Failed to issue credentials: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Guest handles POST /auth/guest: an ephemeral identity with no credentials
func Guest(cfg *config.Config, players *identity.PlayerStore, sessions *identity.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		player, err := players.CreateGuest()
		if err != nil {
			log.Printf("[API] Guest creation failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		resp, err := issueCredentials(c, cfg, sessions, player)
		if err != nil {
			log.Printf("[API] Failed to issue credentials: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// Gateway is the slice of the connection manager the auth surface needs:
// invalidating a session must also tear down its live socket.
type Gateway interface {
	ForceDisconnect(playerID string, code int, reason string) bool
}

// Logout handles POST /auth/logout under RequireSession. An open websocket
// for the player is closed with the invalid-session code.
func Logout(sessions *identity.SessionStore, gateway Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionID, err := c.Cookie(middleware.SessionCookieName); err == nil && sessionID != "" {
			sessions.Invalidate(sessionID)
		}
		if playerID := c.GetString(middleware.PlayerIDKey); playerID != "" && gateway != nil {
			gateway.ForceDisconnect(playerID, ws.CloseInvalidSession, "session invalidated")
		}
		c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"logged_out": true})
	}
}
