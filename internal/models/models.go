package models

import (
	"database/sql"
	"time"
)

// GameRow is the durable record of a game; the full state lives in the
// snapshot JSON, the remaining columns exist for querying.
type GameRow struct {
	ID        string    `db:"id" json:"id"`
	RoomType  string    `db:"room_type" json:"room_type"`
	Snapshot  string    `db:"snapshot_json" json:"snapshot_json"`
	Status    string    `db:"status" json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GameLogRow is one appended game event
type GameLogRow struct {
	GameID    string    `db:"game_id" json:"game_id"`
	Seq       int64     `db:"seq" json:"seq"`
	EventType string    `db:"event_type" json:"event_type"`
	Payload   string    `db:"payload_json" json:"payload_json"`
	Timestamp time.Time `db:"ts" json:"ts"`
}

// PlayerStatsRow aggregates per-player results
type PlayerStatsRow struct {
	PlayerID    string       `db:"player_id" json:"player_id"`
	Wins        int          `db:"wins" json:"wins"`
	Losses      int          `db:"losses" json:"losses"`
	Draws       int          `db:"draws" json:"draws"`
	TotalPoints int          `db:"total_points" json:"total_points"`
	LastPlayed  sql.NullTime `db:"last_played" json:"last_played,omitempty"`
}
