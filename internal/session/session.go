// Package session persists the signed-in session of each chat.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"contxtra_bot/internal/backend"
	"contxtra_bot/internal/model"
	"contxtra_bot/internal/storage"
)

// Key is the storage key holding a chat's session.
const Key = "session"

// RefreshLeeway is how long before expiry an access token is renewed.
const RefreshLeeway = time.Minute

// ErrExpired is returned when a session can no longer be renewed. The stored
// session has been dropped by then.
var ErrExpired = errors.New("session expired")

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.Session, error)
}

const scopePrefix = "chat:"

// Scope returns the storage scope of a chat.
func Scope(chatID int64) string {
	return scopePrefix + strconv.FormatInt(chatID, 10)
}

// ParseScope returns the chat id of a scope produced by Scope.
func ParseScope(scope string) (int64, bool) {
	rest, ok := strings.CutPrefix(scope, scopePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Store reads and writes chat sessions.
type Store struct {
	store storage.Storage
	now   func() time.Time

	// serializes refreshes; refresh tokens are single use
	renewMu sync.Mutex
}

// NewStore creates a Store over store.
func NewStore(store storage.Storage) *Store {
	return &Store{store: store, now: time.Now}
}

// WithClock sets the clock used to decide expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Load returns the chat's session, or an anonymous session when none is stored.
func (s *Store) Load(ctx context.Context, chatID int64) (model.Session, error) {
	raw, err := s.store.Get(ctx, Scope(chatID), Key)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Session{}, nil
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return model.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// Save stores sess for the chat. An anonymous session deletes the stored one.
func (s *Store) Save(ctx context.Context, chatID int64, sess model.Session) error {
	if !sess.Authenticated() {
		return s.store.Delete(ctx, Scope(chatID), Key)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.store.Set(ctx, Scope(chatID), Key, string(b))
}

// Chats lists the chats holding a signed-in session.
func (s *Store) Chats(ctx context.Context) ([]int64, error) {
	scopes, err := s.store.ScopesWithKey(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ids := make([]int64, 0, len(scopes))
	for _, sc := range scopes {
		if id, ok := ParseScope(sc); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Renew returns sess with an access token valid for at least RefreshLeeway,
// refreshing and persisting it when needed. A session renewed meanwhile by
// another caller is picked up from storage. When the backend rejects the refresh
// token, or there is none, the stored session is dropped and ErrExpired returned.
// Other refresh failures return the error with sess unchanged.
func (s *Store) Renew(ctx context.Context, chatID int64, sess model.Session, r Refresher) (model.Session, error) {
	if !s.needsRenewal(sess) {
		return sess, nil
	}

	s.renewMu.Lock()
	defer s.renewMu.Unlock()

	stored, err := s.Load(ctx, chatID)
	if err == nil && stored.UserID == sess.UserID {
		if !s.needsRenewal(stored) {
			return stored, nil
		}
		sess = stored
	}

	if sess.RefreshToken == "" {
		return model.Session{}, s.expire(ctx, chatID)
	}
	fresh, err := r.Refresh(ctx, sess.RefreshToken)
	if errors.Is(err, backend.ErrUnauthorized) || (err == nil && fresh.UserID != sess.UserID) {
		return model.Session{}, s.expire(ctx, chatID)
	}
	if err != nil {
		return sess, fmt.Errorf("renew session: %w", err)
	}
	if err := s.Save(ctx, chatID, fresh); err != nil {
		return fresh, err
	}
	return fresh, nil
}

func (s *Store) needsRenewal(sess model.Session) bool {
	return sess.Authenticated() && sess.ExpiresWithin(s.now(), RefreshLeeway)
}

func (s *Store) expire(ctx context.Context, chatID int64) error {
	if err := s.Save(ctx, chatID, model.Session{}); err != nil {
		return fmt.Errorf("%w: %w", ErrExpired, err)
	}
	return ErrExpired
}
