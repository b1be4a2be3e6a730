package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/polylend/internal/middleware"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore shares idempotency claims across server instances.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: "polylend:idem:",
	}
}

func (s *RedisIdempotencyStore) Claim(key, fingerprint string) (*middleware.IdempotencyRecord, bool) {
	ctx := context.Background()
	pending := middleware.IdempotencyRecord{
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
		Pending:     true,
	}
	locked, err := s.client.SetNX(ctx, s.prefix+key, encodeIdemRecord(pending), s.ttl).Result()
	if err != nil {
		// redis 不可用时放行，由账本自身的前置检查兜底
		logger.Warn("idempotency claim failed", "error", err)
		return nil, false
	}
	if locked {
		return nil, false
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, false
	}
	rec, err := decodeIdemRecord(val)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Complete(key string, rec middleware.IdempotencyRecord) {
	rec.Pending = false
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.client.Set(context.Background(), s.prefix+key, encodeIdemRecord(rec), s.ttl).Err(); err != nil {
		logger.Warn("idempotency save failed", "error", err)
	}
}

func (s *RedisIdempotencyStore) Release(key string) {
	_ = s.client.Del(context.Background(), s.prefix+key).Err()
}

type idemWire struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	Body        string `json:"body"`
	CreatedAt   int64  `json:"created_at"`
	Pending     bool   `json:"pending"`
}

func encodeIdemRecord(rec middleware.IdempotencyRecord) string {
	data, _ := json.Marshal(idemWire{
		Fingerprint: rec.Fingerprint,
		Status:      rec.Status,
		Body:        base64.StdEncoding.EncodeToString(rec.Body),
		CreatedAt:   rec.CreatedAt.Unix(),
		Pending:     rec.Pending,
	})
	return string(data)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire idemWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, err := base64.StdEncoding.DecodeString(wire.Body)
	if err != nil {
		return nil, err
	}
	return &middleware.IdempotencyRecord{
		Fingerprint: wire.Fingerprint,
		Status:      wire.Status,
		Body:        body,
		CreatedAt:   time.Unix(wire.CreatedAt, 0).UTC(),
		Pending:     wire.Pending,
	}, nil
}
