package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/logger"

	"go.uber.org/zap"
)

const DefaultSafetyMargin = 30 * time.Second

var (
	ErrPartialSession = errors.New("session: access and refresh tokens must be saved together")
	ErrNoSession      = errors.New("session: no active session")
)

// Session is a consistent snapshot of the stored credentials.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *v1.User
}

// Active reports whether both tokens are present.
func (s Session) Active() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

type Store struct {
	mu      sync.RWMutex
	backend Backend
	margin  time.Duration
	now     func() time.Time

	access  string
	refresh string
	user    *v1.User
}

type Option func(*Store)

// WithSafetyMargin sets how close to expiry a token may be before
// IsLikelyValid rejects it.
func WithSafetyMargin(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.margin = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates a Store and restores any session persisted in backend.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend: backend,
		margin:  DefaultSafetyMargin,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	e, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if e.AccessToken == "" || e.RefreshToken == "" {
		if e != (Entries{}) {
			logger.Warn("discarding partial session")
			if err := backend.Clear(ctx); err != nil {
				logger.Warn("failed to clear partial session", zap.Error(err))
			}
		}
		return s, nil
	}

	s.access, s.refresh = e.AccessToken, e.RefreshToken
	if e.User != "" {
		var u v1.User
		if err := json.Unmarshal([]byte(e.User), &u); err != nil {
			logger.Warn("ignoring unreadable cached user", zap.Error(err))
		} else {
			s.user = &u
		}
	}
	return s, nil
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *Store) User() *v1.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Session{AccessToken: s.access, RefreshToken: s.refresh}
	if s.user != nil {
		u := *s.user
		out.User = &u
	}
	return out
}

// Save replaces both tokens and keeps the cached user.
func (s *Store) Save(ctx context.Context, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, accessToken, refreshToken, s.user)
}

// SaveSession replaces both tokens and the cached user.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, sess.AccessToken, sess.RefreshToken, sess.User)
}

// SetUser replaces the cached profile of the active session.
func (s *Store) SetUser(ctx context.Context, user *v1.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access == "" || s.refresh == "" {
		return ErrNoSession
	}
	return s.saveLocked(ctx, s.access, s.refresh, user)
}

// saveLocked swaps the in-memory session first so that the process keeps a
// usable session even when the backend write fails; the error is still
// returned.
func (s *Store) saveLocked(ctx context.Context, access, refresh string, user *v1.User) error {
	if access == "" || refresh == "" {
		return ErrPartialSession
	}

	e := Entries{AccessToken: access, RefreshToken: refresh}
	var cached *v1.User
	if user != nil {
		u := *user
		cached = &u
		b, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		e.User = string(b)
	}

	s.access, s.refresh, s.user = access, refresh, cached
	if err := s.backend.Store(ctx, e); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Clear drops both tokens and the cached user. Memory is always cleared, even
// when the backend fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh, s.user = "", "", nil
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) SafetyMargin() time.Duration {
	return s.margin
}

// IsLikelyValid decodes the token's exp claim locally and reports whether it
// is still outside the safety margin.
func (s *Store) IsLikelyValid(token string) bool {
	return LikelyValid(token, s.now(), s.margin)
}
