package session

import (
	"context"
	"sync"
)

// Entries is the persisted layout: three strings written and cleared
// together. User holds the JSON-encoded profile.
type Entries struct {
	AccessToken  string
	RefreshToken string
	User         string
}

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
)

type Backend interface {
	Load(ctx context.Context) (Entries, error)
	Store(ctx context.Context, e Entries) error
	Clear(ctx context.Context) error
}

// MemoryBackend keeps entries for the lifetime of the process only.
type MemoryBackend struct {
	mu sync.Mutex
	e  Entries
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(_ context.Context) (Entries, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.e, nil
}

func (b *MemoryBackend) Store(_ context.Context, e Entries) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.e = e
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.e = Entries{}
	return nil
}
