package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session binds an opaque id to a player with a sliding expiry
type Session struct {
	ID             string    `db:"id" json:"id"`
	PlayerID       string    `db:"player_id" json:"player_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	LastAccessedAt time.Time `db:"last_accessed_at" json:"last_accessed_at"`
}

// SessionStore issues and resolves sessions. Sessions live in memory, are
// mirrored to Redis for other instances, and persisted to Postgres when a DB
// is configured. Resolve refreshes the sliding expiry.
type SessionStore struct {
	db  *sqlx.DB
	rdb *redis.Client
	ttl time.Duration

	mu  sync.RWMutex
	mem map[string]*Session
}

// NewSessionStore creates a session store with the given sliding TTL.
// db and rdb may each be nil.
func NewSessionStore(db *sqlx.DB, rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		db:  db,
		rdb: rdb,
		ttl: ttl,
		mem: make(map[string]*Session),
	}
}

func newSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "s_" + hex.EncodeToString(b)
}

// Create issues a new session for a player
func (s *SessionStore) Create(playerID string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:             newSessionID(),
		PlayerID:       playerID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LastAccessedAt: now,
	}

	if s.db != nil {
		_, err := s.db.Exec(`INSERT INTO sessions (id, player_id, created_at, expires_at, last_accessed_at) VALUES ($1, $2, $3, $4, $5)`,
			sess.ID, sess.PlayerID, sess.CreatedAt, sess.ExpiresAt, sess.LastAccessedAt)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.mem[sess.ID] = sess
	s.mu.Unlock()
	s.mirrorToRedis(sess)

	cp := *sess
	return &cp, nil
}

// Resolve looks up a session and refreshes its sliding expiry
func (s *SessionStore) Resolve(id string) (*Session, error) {
	now := time.Now().UTC()

	s.mu.RLock()
	sess, ok := s.mem[id]
	s.mu.RUnlock()

	if !ok && s.db != nil {
		var row Session
		err := s.db.Get(&row, `SELECT id, player_id, created_at, expires_at, last_accessed_at FROM sessions WHERE id = $1`, id)
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		sess = &row
		s.mu.Lock()
		s.mem[id] = sess
		s.mu.Unlock()
		ok = true
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	if now.After(sess.ExpiresAt) {
		s.Invalidate(id)
		return nil, ErrSessionExpired
	}

	// Sliding expiry: refresh on read
	s.mu.Lock()
	sess.LastAccessedAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	cp := *sess
	s.mu.Unlock()

	if s.db != nil {
		if _, err := s.db.Exec(`UPDATE sessions SET last_accessed_at = $1, expires_at = $2 WHERE id = $3`,
			cp.LastAccessedAt, cp.ExpiresAt, id); err != nil {
			log.Printf("[IDENTITY] Failed to refresh session %s: %v", id, err)
		}
	}
	s.mirrorToRedis(&cp)

	return &cp, nil
}

// Invalidate removes a session everywhere. Idempotent.
func (s *SessionStore) Invalidate(id string) error {
	s.mu.Lock()
	delete(s.mem, id)
	s.mu.Unlock()

	if s.rdb != nil {
		s.rdb.Del(context.Background(), "session:"+id)
	}
	if s.db != nil {
		if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionStore) mirrorToRedis(sess *Session) {
	if s.rdb == nil {
		return
	}
	ctx := context.Background()
	if err := s.rdb.Set(ctx, "session:"+sess.ID, sess.PlayerID, time.Until(sess.ExpiresAt)).Err(); err != nil {
		log.Printf("[IDENTITY] Failed to mirror session %s to redis: %v", sess.ID, err)
	}
}
