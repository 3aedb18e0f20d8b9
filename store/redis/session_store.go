// Package redisstore shares fetched auth sessions between engine instances
// through Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/security"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "restbind:session"
	defaultMinTTL    = time.Second

	fieldGeneration = "generation"
	fieldPayload    = "payload"
)

// saveSessionScript only replaces the stored session with a newer generation.
const saveSessionScript = `
local current = tonumber(redis.call("HGET", KEYS[1], "generation") or "0")
local incoming = tonumber(ARGV[1])
if current >= incoming then
  return 0
end
redis.call("HSET", KEYS[1], "generation", ARGV[1], "payload", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

// deleteSessionScript only removes the session when it still holds the
// invalidated generation.
const deleteSessionScript = `
local current = tonumber(redis.call("HGET", KEYS[1], "generation") or "0")
if current == 0 then
  return 0
end
if current > tonumber(ARGV[1]) then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

var (
	saveSessionLua   = redis.NewScript(saveSessionScript)
	deleteSessionLua = redis.NewScript(deleteSessionScript)
)

type storedSession struct {
	Token        string            `json:"token,omitempty"`
	Secret       string            `json:"secret,omitempty"`
	SessionToken string            `json:"session_token,omitempty"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at"`
	FetchedAt    time.Time         `json:"fetched_at"`
}

// SessionStore implements core.SessionStore on a Redis hash per cache key.
// Writes are generation-guarded so a slower instance never overwrites or
// deletes a session renewed by another one.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	minTTL time.Duration
	now    func() time.Time
	cipher security.Cipher
}

type Option func(*SessionStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *SessionStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

// WithMinTTL sets the floor applied to the Redis expiry of saved sessions.
func WithMinTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.minTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPayloadCipher encrypts the stored credential payload. The generation
// field stays in clear text for the write guards.
func WithPayloadCipher(cipher security.Cipher) Option {
	return func(s *SessionStore) {
		s.cipher = cipher
	}
}

func NewSessionStore(client redis.UniversalClient, opts ...Option) (*SessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &SessionStore{
		client: client,
		prefix: DefaultKeyPrefix,
		minTTL: defaultMinTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Key returns the Redis key used for cacheKey.
func (s *SessionStore) Key(cacheKey string) string {
	return s.prefix + ":" + strings.TrimSpace(cacheKey)
}

func (s *SessionStore) Load(ctx context.Context, key string) (core.AuthSession, bool, error) {
	if s == nil || s.client == nil {
		return core.AuthSession{}, false, fmt.Errorf("redisstore: session store is not configured")
	}
	values, err := s.client.HMGet(ctx, s.Key(key), fieldGeneration, fieldPayload).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.AuthSession{}, false, nil
		}
		return core.AuthSession{}, false, err
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return core.AuthSession{}, false, nil
	}
	generation, err := strconv.ParseUint(fmt.Sprint(values[0]), 10, 64)
	if err != nil {
		return core.AuthSession{}, false, fmt.Errorf("redisstore: invalid session generation: %w", err)
	}
	payload := []byte(fmt.Sprint(values[1]))
	if security.IsEnvelope(payload) {
		if s.cipher == nil {
			return core.AuthSession{}, false, fmt.Errorf("redisstore: session payload is encrypted but no cipher is configured")
		}
		if payload, err = s.cipher.Decrypt(ctx, payload); err != nil {
			return core.AuthSession{}, false, fmt.Errorf("redisstore: decrypt session payload: %w", err)
		}
	}
	var stored storedSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		return core.AuthSession{}, false, fmt.Errorf("redisstore: invalid session payload: %w", err)
	}
	return core.AuthSession{
		Credential: core.Credential{
			Token:        stored.Token,
			Secret:       stored.Secret,
			SessionToken: stored.SessionToken,
			Endpoint:     stored.Endpoint,
			Attributes:   stored.Attributes,
		},
		ExpiresAt:  stored.ExpiresAt,
		Generation: generation,
		FetchedAt:  stored.FetchedAt,
	}, true, nil
}

// Save stores session unless a session with the same or a newer generation is
// already present.
func (s *SessionStore) Save(ctx context.Context, key string, session core.AuthSession) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: session store is not configured")
	}
	if session.IsZero() {
		return fmt.Errorf("redisstore: session generation is required")
	}
	payload, err := json.Marshal(storedSession{
		Token:        session.Credential.Token,
		Secret:       session.Credential.Secret,
		SessionToken: session.Credential.SessionToken,
		Endpoint:     session.Credential.Endpoint,
		Attributes:   session.Credential.Attributes,
		ExpiresAt:    session.ExpiresAt.UTC(),
		FetchedAt:    session.FetchedAt.UTC(),
	})
	if err != nil {
		return err
	}
	if s.cipher != nil {
		if payload, err = s.cipher.Encrypt(ctx, payload); err != nil {
			return fmt.Errorf("redisstore: encrypt session payload: %w", err)
		}
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl < s.minTTL {
		ttl = s.minTTL
	}
	_, err = saveSessionLua.Run(ctx, s.client,
		[]string{s.Key(key)},
		strconv.FormatUint(session.Generation, 10),
		string(payload),
		ttl.Milliseconds(),
	).Int64()
	return err
}

// Delete removes the stored session when its generation is not newer than
// generation.
func (s *SessionStore) Delete(ctx context.Context, key string, generation uint64) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: session store is not configured")
	}
	_, err := deleteSessionLua.Run(ctx, s.client,
		[]string{s.Key(key)},
		strconv.FormatUint(generation, 10),
	).Int64()
	return err
}

var _ core.SessionStore = (*SessionStore)(nil)
