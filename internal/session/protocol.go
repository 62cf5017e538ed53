package session

import "encoding/json"

// Command frame types accepted on the websocket
const (
	CmdPing              = "PING"
	CmdJoinMatchmaking   = "JOIN_MATCHMAKING"
	CmdCancelMatchmaking = "CANCEL_MATCHMAKING"
	CmdPlayCard          = "PLAY_CARD"
	CmdSelectTarget      = "SELECT_TARGET"
	CmdMakeDecision      = "MAKE_DECISION"
	CmdConfirmContinue   = "CONFIRM_CONTINUE"
	CmdLeaveGame         = "LEAVE_GAME"
)

// CommandFrame is an inbound wire frame
type CommandFrame struct {
	CommandID string          `json:"command_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// CommandResponse is the per-command ack or rejection
type CommandResponse struct {
	CommandID  string `json:"command_id"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func ack(commandID string) CommandResponse {
	return CommandResponse{CommandID: commandID, Success: true}
}

func ackResult(commandID, result string) CommandResponse {
	return CommandResponse{CommandID: commandID, Success: true, Result: result}
}

func reject(commandID, code, message string) CommandResponse {
	return CommandResponse{CommandID: commandID, Success: false, Code: code, Message: message}
}

// Command payloads

type JoinMatchmakingPayload struct {
	RoomType string `json:"room_type"`
}

type PlayCardPayload struct {
	GameID       string `json:"game_id"`
	CardID       string `json:"card_id"`
	TargetCardID string `json:"target_card_id,omitempty"`
}

type SelectTargetPayload struct {
	GameID       string `json:"game_id"`
	SourceCardID string `json:"source_card_id"`
	TargetCardID string `json:"target_card_id"`
}

type MakeDecisionPayload struct {
	GameID   string `json:"game_id"`
	Decision string `json:"decision"`
}

type ConfirmContinuePayload struct {
	GameID   string `json:"game_id"`
	Decision string `json:"decision"` // CONTINUE | LEAVE
}

type LeaveGamePayload struct {
	GameID string `json:"game_id"`
}
