package directory

import (
	"context"
	"sync"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/dialog"
)

// MemoryStore is an in-memory directory store for development and tests.
type MemoryStore struct {
	users map[int64]api.User
	chats map[dialog.ID]api.Chat
	mu    sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]api.User),
		chats: make(map[dialog.ID]api.Chat),
	}
}

func (m *MemoryStore) UpsertUsers(ctx context.Context, users []api.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range users {
		m.users[u.ID] = u
	}
	return nil
}

func (m *MemoryStore) UpsertChats(ctx context.Context, chats []api.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chats {
		m.chats[c.DialogID()] = c
	}
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*api.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetChat(ctx context.Context, d dialog.ID) (*api.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chats[d]
	if !ok {
		return nil, ErrChatNotFound
	}
	return &c, nil
}
