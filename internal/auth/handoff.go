// Package auth implements the short-lived handoff token that moves an
// authenticated player from a matchmaking-serving instance to the
// game-serving instance.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"
)

// DefaultHandoffTTL bounds how long a minted token stays valid
const DefaultHandoffTTL = 30 * time.Second

// Errors
var (
	ErrTokenMalformed = errors.New("handoff token malformed")
	ErrTokenExpired   = errors.New("handoff token expired")
	ErrTokenSignature = errors.New("handoff token signature mismatch")
)

// HandoffPayload links a player to the game they are being handed to
type HandoffPayload struct {
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
}

type handoffEnvelope struct {
	Payload HandoffPayload `json:"payload"`
	Exp     int64          `json:"exp"`
	Sig     string         `json:"sig,omitempty"`
}

// Handoff mints and verifies handoff tokens with an HMAC-SHA256 secret
type Handoff struct {
	secret []byte
	ttl    time.Duration
}

// NewHandoff creates a token service. ttl <= 0 selects the default 30s.
func NewHandoff(secret string, ttl time.Duration) *Handoff {
	if ttl <= 0 {
		ttl = DefaultHandoffTTL
	}
	return &Handoff{secret: []byte(secret), ttl: ttl}
}

// Create mints a signed token for (playerID, gameID)
func (h *Handoff) Create(playerID, gameID string) (string, error) {
	env := handoffEnvelope{
		Payload: HandoffPayload{PlayerID: playerID, GameID: gameID},
		Exp:     time.Now().Add(h.ttl).Unix(),
	}
	sig, err := h.sign(env)
	if err != nil {
		return "", err
	}
	env.Sig = sig

	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Verify checks expiry and signature (constant time) and returns the payload
func (h *Handoff) Verify(token string) (HandoffPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		log.Printf("[AUTH] Handoff token rejected: bad encoding")
		return HandoffPayload{}, ErrTokenMalformed
	}
	var env handoffEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[AUTH] Handoff token rejected: bad envelope")
		return HandoffPayload{}, ErrTokenMalformed
	}

	if time.Now().Unix() >= env.Exp {
		log.Printf("[AUTH] Handoff token rejected: expired for player %s", env.Payload.PlayerID)
		return HandoffPayload{}, ErrTokenExpired
	}

	expected, err := h.sign(env)
	if err != nil {
		return HandoffPayload{}, err
	}
	if !hmac.Equal([]byte(expected), []byte(env.Sig)) {
		log.Printf("[AUTH] Handoff token rejected: signature mismatch for player %s", env.Payload.PlayerID)
		return HandoffPayload{}, ErrTokenSignature
	}

	return env.Payload, nil
}

// sign computes HMAC-SHA256 over the JSON of {payload, exp}
func (h *Handoff) sign(env handoffEnvelope) (string, error) {
	unsigned := handoffEnvelope{Payload: env.Payload, Exp: env.Exp}
	raw, err := json.Marshal(unsigned)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
