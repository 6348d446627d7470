package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/redis/go-redis/v9"
)

// Store keeps socket presence in Redis so every API instance sees the same state.
// Keys:
//   - <prefix>:conn:<userID>     number of open sockets
//   - <prefix>:presence:<userID> json {status,last_seen}
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type record struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *Store) connKey(userID int64) string {
	return fmt.Sprintf("%s:conn:%s", s.prefix, strconv.FormatInt(userID, 10))
}

func (s *Store) presenceKey(userID int64) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, strconv.FormatInt(userID, 10))
}

func (s *Store) MarkOnline(ctx context.Context, userID int64) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, s.connKey(userID))
	pipe.Expire(ctx, s.connKey(userID), s.ttl)
	pipe.Set(ctx, s.presenceKey(userID), encode("online"), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the online window of an open socket.
func (s *Store) Refresh(ctx context.Context, userID int64) error {
	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, s.connKey(userID), s.ttl)
	pipe.Set(ctx, s.presenceKey(userID), encode("online"), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkOffline drops one socket; the user goes offline when none remain.
func (s *Store) MarkOffline(ctx context.Context, userID int64) error {
	remaining, err := s.client.Decr(ctx, s.connKey(userID)).Result()
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.connKey(userID))
	pipe.Set(ctx, s.presenceKey(userID), encode("offline"), 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Lookup(ctx context.Context, userID int64) (models.Presence, error) {
	raw, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Presence{}, nil
	}
	if err != nil {
		return models.Presence{}, err
	}
	return decode(raw)
}

func encode(status string) []byte {
	payload, _ := json.Marshal(record{Status: status, LastSeen: time.Now().Unix()})
	return payload
}

func decode(raw []byte) (models.Presence, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.Presence{}, fmt.Errorf("decode presence: %w", err)
	}
	presence := models.Presence{IsOnline: rec.Status == "online"}
	if rec.LastSeen > 0 {
		lastSeen := time.Unix(rec.LastSeen, 0).UTC()
		presence.LastSeenAt = &lastSeen
	}
	return presence, nil
}
