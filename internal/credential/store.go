package credential

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps credential references in process memory; for dev and
// tests.
type MemoryStore struct {
	mu   sync.Mutex
	refs map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{refs: make(map[string]string)}
}

// Get returns the stored reference or "".
func (s *MemoryStore) Get(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[userID], nil
}

// Put stores a reference.
func (s *MemoryStore) Put(_ context.Context, userID, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[userID] = credentialID
	return nil
}

// RedisStore keeps credential references durable across restarts, keyed
// by user identity.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "biomark:credential:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the stored reference or "" when the user has none.
func (s *RedisStore) Get(ctx context.Context, userID string) (string, error) {
	val, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Put stores a reference with no expiry.
func (s *RedisStore) Put(ctx context.Context, userID, credentialID string) error {
	return s.client.Set(ctx, s.prefix+userID, credentialID, 0).Err()
}
