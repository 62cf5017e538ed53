// Package identity is the runtime's view of the account collaborator:
// player records, credentials, and the opaque sessions presented at the
// websocket handshake.
package identity

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// The AI opponent plays under a fixed sentinel identity
const (
	BotPlayerID     = "bot_computer"
	BotDisplayName  = "Computer"
	guestNamePrefix = "Guest"
)

// Errors
var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrBadCredentials = errors.New("invalid display name or password")
	ErrNameTaken      = errors.New("display name already registered")
)

// Player is the read model the runtime consumes
type Player struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	IsBot       bool      `db:"is_bot" json:"is_bot"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PlayerStore reads and creates players. Backed by Postgres when a DB is
// configured, with an in-memory map otherwise (dev mode and tests).
type PlayerStore struct {
	db *sqlx.DB

	mu     sync.RWMutex
	mem    map[string]*Player
	memPwd map[string][]byte // player id -> bcrypt hash
	byName map[string]string // display name -> player id
}

// NewPlayerStore creates a player store. db may be nil.
func NewPlayerStore(db *sqlx.DB) *PlayerStore {
	s := &PlayerStore{
		db:     db,
		mem:    make(map[string]*Player),
		memPwd: make(map[string][]byte),
		byName: make(map[string]string),
	}
	// The bot identity always resolves
	s.mem[BotPlayerID] = &Player{
		ID:          BotPlayerID,
		DisplayName: BotDisplayName,
		IsBot:       true,
		CreatedAt:   time.Now().UTC(),
	}
	return s
}

func newPlayerID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "p_" + hex.EncodeToString(b)
}

// Get resolves a player by id
func (s *PlayerStore) Get(id string) (*Player, error) {
	s.mu.RLock()
	if p, ok := s.mem[id]; ok {
		s.mu.RUnlock()
		cp := *p
		return &cp, nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrPlayerNotFound
	}
	var p Player
	err := s.db.Get(&p, `SELECT id, display_name, is_bot, created_at FROM players WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cache(&p)
	return &p, nil
}

// Register creates a player with credentials
func (s *PlayerStore) Register(displayName, password string) (*Player, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	p := &Player{
		ID:          newPlayerID(),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	if s.db != nil {
		tx, err := s.db.Beginx()
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		var exists bool
		if err := tx.Get(&exists, `SELECT EXISTS (SELECT 1 FROM players WHERE display_name = $1)`, displayName); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrNameTaken
		}
		if _, err := tx.Exec(`INSERT INTO players (id, display_name, is_bot, created_at) VALUES ($1, $2, FALSE, $3)`,
			p.ID, p.DisplayName, p.CreatedAt); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`INSERT INTO accounts (player_id, password_hash, created_at) VALUES ($1, $2, $3)`,
			p.ID, string(hash), p.CreatedAt); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.mem[p.ID] = p
		s.memPwd[p.ID] = hash
		s.byName[displayName] = p.ID
		s.mu.Unlock()
	} else {
		// Check and insert under one lock; concurrent registrations of the
		// same name must see exactly one winner.
		s.mu.Lock()
		if _, taken := s.byName[displayName]; taken {
			s.mu.Unlock()
			return nil, ErrNameTaken
		}
		s.mem[p.ID] = p
		s.memPwd[p.ID] = hash
		s.byName[displayName] = p.ID
		s.mu.Unlock()
	}

	log.Printf("[IDENTITY] Registered player %s (%s)", p.ID, displayName)
	cp := *p
	return &cp, nil
}

// Authenticate verifies credentials and returns the player
func (s *PlayerStore) Authenticate(displayName, password string) (*Player, error) {
	var (
		p    *Player
		hash []byte
	)

	s.mu.RLock()
	if id, ok := s.byName[displayName]; ok {
		cached := *s.mem[id]
		p = &cached
		hash = s.memPwd[id]
	}
	s.mu.RUnlock()

	if p == nil && s.db != nil {
		var row struct {
			Player
			PasswordHash string `db:"password_hash"`
		}
		err := s.db.Get(&row, `
			SELECT p.id, p.display_name, p.is_bot, p.created_at, a.password_hash
			FROM players p JOIN accounts a ON a.player_id = p.id
			WHERE p.display_name = $1`, displayName)
		if err == sql.ErrNoRows {
			return nil, ErrBadCredentials
		}
		if err != nil {
			return nil, err
		}
		p = &row.Player
		hash = []byte(row.PasswordHash)
	}
	if p == nil {
		return nil, ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	s.mu.Lock()
	s.mem[p.ID] = p
	s.memPwd[p.ID] = hash
	s.byName[p.DisplayName] = p.ID
	s.mu.Unlock()

	cp := *p
	return &cp, nil
}

// CreateGuest creates an ephemeral player with a generated name
func (s *PlayerStore) CreateGuest() (*Player, error) {
	p := &Player{
		ID:        newPlayerID(),
		CreatedAt: time.Now().UTC(),
	}
	p.DisplayName = guestNamePrefix + "-" + p.ID[len(p.ID)-4:]

	if s.db != nil {
		if _, err := s.db.Exec(`INSERT INTO players (id, display_name, is_bot, created_at) VALUES ($1, $2, FALSE, $3)`,
			p.ID, p.DisplayName, p.CreatedAt); err != nil {
			return nil, err
		}
	}

	s.cache(p)
	cp := *p
	return &cp, nil
}

func (s *PlayerStore) cache(p *Player) {
	s.mu.Lock()
	s.mem[p.ID] = p
	s.byName[p.DisplayName] = p.ID
	s.mu.Unlock()
}
