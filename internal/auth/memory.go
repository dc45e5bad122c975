package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtrntr/marketplace/internal/models"
)

// ErrUserNotFound is returned by MemoryUserStore for unknown usernames
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken is returned by user stores for duplicate usernames
var ErrUsernameTaken = errors.New("username already taken")

// MemoryUserStore keeps users in process memory. It backs the server when no
// database is configured.
type MemoryUserStore struct {
	mu     sync.RWMutex
	nextID int
	users  map[string]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{nextID: 1, users: make(map[string]models.User)}
}

func (m *MemoryUserStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return nil, ErrUsernameTaken
	}
	u := models.User{
		ID:           m.nextID,
		Account:      models.AccountID(uuid.NewString()),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.nextID++
	m.users[username] = u
	return &u, nil
}

func (m *MemoryUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
