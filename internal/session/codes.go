// Package session is the game session runtime: it owns the command path,
// the per-game locks, the timers that drive auto-actions and round
// progression, and the mapping from domain outcomes to outbound events.
package session

import (
	"errors"

	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/matchmaking"
)

// Stable wire error codes
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeUnknownCommand    = "UNKNOWN_COMMAND"
	CodeGameNotFound      = "GAME_NOT_FOUND"
	CodeWrongPlayer       = "WRONG_PLAYER"
	CodeInvalidState      = "INVALID_STATE"
	CodeInvalidCard       = "INVALID_CARD"
	CodeInvalidTarget     = "INVALID_TARGET"
	CodeAlreadyInQueue    = "ALREADY_IN_QUEUE"
	CodeAlreadyInGame     = "ALREADY_IN_GAME"
	CodeInvalidRoomType   = "INVALID_ROOM_TYPE"
	CodePlayerNotFound    = "PLAYER_NOT_FOUND"
	CodeMatchmakingError  = "MATCHMAKING_ERROR"
	CodeUnknownError      = "UNKNOWN_ERROR"
)

// ErrGameNotFound is raised when a game id resolves to nothing
var ErrGameNotFound = errors.New("game not found")

// errorCode maps a domain error to its stable wire code
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrGameNotFound):
		return CodeGameNotFound
	case errors.Is(err, hanafuda.ErrPlayerNotInRound),
		errors.Is(err, hanafuda.ErrNotActivePlayer):
		return CodeWrongPlayer
	case errors.Is(err, hanafuda.ErrInvalidFlowState),
		errors.Is(err, hanafuda.ErrInvalidTransition),
		errors.Is(err, hanafuda.ErrNoCurrentRound),
		errors.Is(err, hanafuda.ErrRoundNotEnded),
		errors.Is(err, hanafuda.ErrNotPendingConfirm):
		return CodeInvalidState
	case errors.Is(err, hanafuda.ErrCardNotInHand):
		return CodeInvalidCard
	case errors.Is(err, hanafuda.ErrInvalidTarget):
		return CodeInvalidTarget
	case errors.Is(err, matchmaking.ErrAlreadyInQueue):
		return CodeAlreadyInQueue
	case errors.Is(err, matchmaking.ErrAlreadyInGame):
		return CodeAlreadyInGame
	case errors.Is(err, matchmaking.ErrInvalidRoomType):
		return CodeInvalidRoomType
	case errors.Is(err, matchmaking.ErrNotInQueue):
		return CodeMatchmakingError
	}
	return CodeUnknownError
}
