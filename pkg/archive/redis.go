package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
)

// RedisOptions configures the Redis connection and key layout.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0").
	URL string
	// TTL expires archived records; zero keeps them forever.
	TTL time.Duration
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisStore archives each item as a JSON value and indexes keys in sorted
// sets by archive time, one overall and one per category.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "ctxbuf:archive:"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: opts.TTL, prefix: opts.KeyPrefix}, nil
}

func (r *RedisStore) itemKey(id contextbuf.ItemID) string {
	return r.prefix + "item:" + string(id)
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisStore) categoryKey(c contextbuf.Category) string {
	return r.prefix + "category:" + c.String()
}

// Store writes the record and its index entries in one transaction.
func (r *RedisStore) Store(ctx context.Context, item contextbuf.Item) (string, error) {
	rec := Record{Key: r.itemKey(item.ID), Item: item, ArchivedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal archived item: %w", err)
	}

	score := float64(rec.ArchivedAt.UnixNano())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rec.Key, data, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: score, Member: rec.Key})
		pipe.ZAdd(ctx, r.categoryKey(item.Category), redis.Z{Score: score, Member: rec.Key})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive item %s: %w", item.ID, err)
	}
	return rec.Key, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get archived item %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal archived item %s: %w", key, err)
	}
	return rec, nil
}

// List reads keys from the matching index oldest first. Index entries whose
// record has expired are pruned as they are found.
func (r *RedisStore) List(ctx context.Context, f Filter) ([]Record, error) {
	index := r.indexKey()
	if f.Category != nil {
		index = r.categoryKey(*f.Category)
	}

	keys, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read archive index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read archived items: %w", err)
	}

	var (
		out     []Record
		expired []any
	)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, keys[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal archived item %s: %w", keys[i], err)
		}
		if !f.match(&rec.Item) {
			continue
		}
		if f.Limit == 0 || len(out) < f.Limit {
			out = append(out, rec)
		}
	}

	if len(expired) > 0 {
		pipe := r.client.Pipeline()
		pipe.ZRem(ctx, r.indexKey(), expired...)
		for _, c := range contextbuf.Categories() {
			pipe.ZRem(ctx, r.categoryKey(c), expired...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return out, fmt.Errorf("failed to prune archive index: %w", err)
		}
	}
	return out, nil
}

// Count returns the number of indexed records, including ones that have
// expired but not yet been pruned by List.
func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count archived items: %w", err)
	}
	return int(n), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
