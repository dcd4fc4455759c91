package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	model "charity-auction/internal/models"
	"charity-auction/utils"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "auction:bidder-session:"

// SessionKey is the durable key the identity of a browser session is kept under.
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// SessionStore persists the current bidder of a browser session across page loads.
type SessionStore interface {
	// Load returns false when nothing usable is stored. A value that cannot
	// be parsed counts as no session.
	Load(ctx context.Context, sessionID string) (model.BidderIdentity, bool, error)
	Save(ctx context.Context, sessionID string, identity model.BidderIdentity) error
	Clear(ctx context.Context, sessionID string) error
}

// decodeSession parses a stored value, logging and rejecting anything unusable.
func decodeSession(sessionID string, raw []byte) (model.BidderIdentity, bool) {
	var identity model.BidderIdentity
	if err := json.Unmarshal(raw, &identity); err != nil || identity.Name == "" {
		fields := map[string]any{"component": "identity", "session_key": SessionKey(sessionID)}
		if err != nil {
			fields["error"] = err.Error()
		}
		utils.Warn("identity: discarding unreadable bidder session", fields)
		return model.BidderIdentity{}, false
	}
	return identity, true
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemorySessionStore keeps sessions in process memory. Values are stored
// serialized so a corrupted entry behaves as it would in Redis.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates a store whose entries expire after ttl; zero means never.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemorySessionStore) Load(_ context.Context, sessionID string) (model.BidderIdentity, bool, error) {
	m.mu.Lock()
	entry, ok := m.entries[SessionKey(sessionID)]
	if ok && !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.entries, SessionKey(sessionID))
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return model.BidderIdentity{}, false, nil
	}
	identity, ok := decodeSession(sessionID, entry.value)
	return identity, ok, nil
}

func (m *MemorySessionStore) Save(_ context.Context, sessionID string, identity model.BidderIdentity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("identity: encode session: %w", err)
	}
	m.SaveRaw(sessionID, raw)
	return nil
}

// SaveRaw stores raw bytes under the session key as-is.
func (m *MemorySessionStore) SaveRaw(sessionID string, raw []byte) {
	entry := memoryEntry{value: raw}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[SessionKey(sessionID)] = entry
}

func (m *MemorySessionStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, SessionKey(sessionID))
	return nil
}

// RedisSessionStore keeps sessions in Redis with a sliding TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a Redis-backed SessionStore.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

// NewRedisClient parses a Redis URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	utils.Info("redis client connected", map[string]any{"component": "identity", "addr": opts.Addr, "pool_size": opts.PoolSize})
	return client, nil
}

func (r *RedisSessionStore) Load(ctx context.Context, sessionID string) (model.BidderIdentity, bool, error) {
	key := SessionKey(sessionID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.BidderIdentity{}, false, nil
		}
		return model.BidderIdentity{}, false, fmt.Errorf("redis_bidder_session_get_failed: %w", err)
	}

	identity, ok := decodeSession(sessionID, raw)
	if !ok {
		return model.BidderIdentity{}, false, nil
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			utils.Warn("identity: refreshing session ttl failed", map[string]any{"component": "identity", "error": err.Error()})
		}
	}
	return identity, true, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, sessionID string, identity model.BidderIdentity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("identity: encode session: %w", err)
	}
	if err := r.client.Set(ctx, SessionKey(sessionID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis_bidder_session_set_failed: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, SessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis_bidder_session_delete_failed: %w", err)
	}
	return nil
}
