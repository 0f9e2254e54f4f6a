package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

const defaultKeyPrefix = "moniker:ledger:"

// Redis keeps the ledger in one hash per group so several service instances
// enforce the same baseline. Field = participant, value = JSON entry.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a Redis ledger.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces the group hashes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) key(groupID string) string {
	return r.prefix + groupID
}

func (r *Redis) Get(ctx context.Context, groupID, participantID string) (Entry, error) {
	raw, err := r.client.HGet(ctx, r.key(groupID), participantID).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, fmt.Errorf("decode ledger entry: %w", err)
	}
	return e, nil
}

func (r *Redis) Put(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	if err := r.client.HSet(ctx, r.key(e.GroupID), e.ParticipantID, data).Err(); err != nil {
		return fmt.Errorf("ledger put: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, groupID, participantID string) error {
	n, err := r.client.HDel(ctx, r.key(groupID), participantID).Result()
	if err != nil {
		return fmt.Errorf("ledger remove: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (r *Redis) List(ctx context.Context, groupID string) ([]Entry, error) {
	all, err := r.client.HGetAll(ctx, r.key(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	out := make([]Entry, 0, len(all))
	for participant, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode ledger entry for %s: %w", participant, err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
