package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisPriceCache reads feed rounds that an external publisher writes as hashes:
//
//	HSET oracle:feed:SOL/USD answer 2345000000 decimals 8 description "SOL / USD" updated_at 1700000000
type RedisPriceCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisPriceCache(client redis.Cmdable, prefix string) *RedisPriceCache {
	if prefix == "" {
		prefix = "oracle:feed:"
	}
	return &RedisPriceCache{client: client, prefix: prefix}
}

func (c *RedisPriceCache) key(feedID string) string {
	return c.prefix + strings.ToUpper(strings.TrimSpace(feedID))
}

func (c *RedisPriceCache) Latest(ctx context.Context, feedID string) (oracle.Reading, error) {
	fields, err := c.client.HGetAll(ctx, c.key(feedID)).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return oracle.Reading{}, err
		}
		return oracle.Reading{}, fmt.Errorf("%w: %v", oracle.ErrOracleUnavailable, err)
	}
	return readingFromHash(feedID, fields)
}

// Publish writes a round in the same layout Latest reads. Used by operators and tests.
func (c *RedisPriceCache) Publish(ctx context.Context, r oracle.Reading) error {
	return c.client.HSet(ctx, c.key(r.FeedID),
		"answer", strconv.FormatInt(r.Answer, 10),
		"decimals", strconv.FormatInt(int64(r.Decimals), 10),
		"description", r.Description,
		"updated_at", strconv.FormatInt(r.UpdatedAt.Unix(), 10),
	).Err()
}

func readingFromHash(feedID string, fields map[string]string) (oracle.Reading, error) {
	if len(fields) == 0 {
		return oracle.Reading{}, fmt.Errorf("%w: %s", oracle.ErrFeedNotFound, feedID)
	}
	answer, err := strconv.ParseInt(fields["answer"], 10, 64)
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("%w: answer %q", oracle.ErrInvalidPrice, fields["answer"])
	}
	var decimals int64
	if raw := fields["decimals"]; raw != "" {
		decimals, err = strconv.ParseInt(raw, 10, 32)
		if err != nil || decimals < 0 || decimals > oracle.MaxDecimals {
			return oracle.Reading{}, fmt.Errorf("%w: decimals %q", oracle.ErrInvalidPrice, raw)
		}
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("%w: updated_at %q", oracle.ErrInvalidPrice, fields["updated_at"])
	}
	return oracle.Reading{
		FeedID:      strings.ToUpper(strings.TrimSpace(feedID)),
		Answer:      answer,
		Decimals:    int32(decimals),
		Description: fields["description"],
		UpdatedAt:   time.Unix(updated, 0).UTC(),
	}, nil
}
