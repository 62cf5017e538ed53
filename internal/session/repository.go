package session

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/models"
)

// Repository persists games, the append-only game log and per-player result
// aggregates. All writes are best-effort: the in-memory store is the source
// of truth and a database failure never blocks play.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repository. db may be nil (dev mode and tests).
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SaveGame upserts the game row with its full snapshot
func (r *Repository) SaveGame(g *hanafuda.Game) {
	if r.db == nil {
		return
	}
	snapshot, err := json.Marshal(g)
	if err != nil {
		log.Printf("[DB] Failed to marshal game %s: %v", g.ID, err)
		return
	}
	_, err = r.db.Exec(`
		INSERT INTO games (id, room_type, snapshot_json, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET snapshot_json = EXCLUDED.snapshot_json,
		    status        = EXCLUDED.status,
		    updated_at    = EXCLUDED.updated_at`,
		g.ID, string(g.RoomType), string(snapshot), string(g.Status), time.Now().UTC())
	if err != nil {
		log.Printf("[DB] Failed to save game %s: %v", g.ID, err)
	}
}

// AppendLog writes one event to the game's append-only log
func (r *Repository) AppendLog(gameID, eventType string, payload interface{}) {
	if r.db == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[DB] Failed to marshal log payload for game %s: %v", gameID, err)
		return
	}

	var seq int64
	if err := r.db.Get(&seq, `SELECT COALESCE(MAX(seq), 0) + 1 FROM game_logs WHERE game_id = $1`, gameID); err != nil {
		log.Printf("[DB] Failed to read log sequence for game %s: %v", gameID, err)
		return
	}
	_, err = r.db.Exec(`
		INSERT INTO game_logs (game_id, seq, event_type, payload_json, ts)
		VALUES ($1, $2, $3, $4, $5)`,
		gameID, seq, eventType, string(data), time.Now().UTC())
	if err != nil {
		log.Printf("[DB] Failed to append log for game %s: %v", gameID, err)
	}
}

// RecordResult folds one finished game into the player's aggregates.
// outcome is "win", "loss" or "draw".
func (r *Repository) RecordResult(playerID, outcome string, points int) {
	if r.db == nil {
		return
	}
	wins, losses, draws := 0, 0, 0
	switch outcome {
	case "win":
		wins = 1
	case "loss":
		losses = 1
	case "draw":
		draws = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO player_stats (player_id, wins, losses, draws, total_points, last_played)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id) DO UPDATE
		SET wins         = player_stats.wins + EXCLUDED.wins,
		    losses       = player_stats.losses + EXCLUDED.losses,
		    draws        = player_stats.draws + EXCLUDED.draws,
		    total_points = player_stats.total_points + EXCLUDED.total_points,
		    last_played  = EXCLUDED.last_played`,
		playerID, wins, losses, draws, points, time.Now().UTC())
	if err != nil {
		log.Printf("[DB] Failed to record result for player %s: %v", playerID, err)
	}
}

// LoadStats reads a player's aggregates; missing rows come back zeroed
func (r *Repository) LoadStats(playerID string) (*models.PlayerStatsRow, error) {
	stats := &models.PlayerStatsRow{PlayerID: playerID}
	if r.db == nil {
		return stats, nil
	}
	err := r.db.Get(stats, `
		SELECT player_id, wins, losses, draws, total_points, last_played
		FROM player_stats WHERE player_id = $1`, playerID)
	if err == sql.ErrNoRows {
		return &models.PlayerStatsRow{PlayerID: playerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// LoadGame reads the durable game row
func (r *Repository) LoadGame(gameID string) (*models.GameRow, error) {
	if r.db == nil {
		return nil, sql.ErrNoRows
	}
	var row models.GameRow
	if err := r.db.Get(&row, `
		SELECT id, room_type, snapshot_json, status, updated_at
		FROM games WHERE id = $1`, gameID); err != nil {
		return nil, err
	}
	return &row, nil
}

// LoadLogs reads a game's event log in sequence order
func (r *Repository) LoadLogs(gameID string) ([]models.GameLogRow, error) {
	if r.db == nil {
		return nil, nil
	}
	var rows []models.GameLogRow
	if err := r.db.Select(&rows, `
		SELECT game_id, seq, event_type, payload_json, ts
		FROM game_logs WHERE game_id = $1 ORDER BY seq`, gameID); err != nil {
		return nil, err
	}
	return rows, nil
}
