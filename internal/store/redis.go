package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/thrillee/smppsim/internal/message"
)

const (
	RecordKeyPrefix = "smppsim:message:"
	RecordIndexKey  = "smppsim:messages"
)

// RedisStore keeps JSON records with an optional TTL plus a sorted-set index
// ordered by receive time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) PutOrUpdate(ctx context.Context, id string, rec message.Record) bool {
	body, err := json.Marshal(rec)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal message record", slog.String("id", id), slog.Any("error", err))
		return false
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RecordKeyPrefix+id, body, s.ttl)
		pipe.ZAdd(ctx, RecordIndexKey, &redis.Z{Score: float64(rec.ReceivedAt.UnixNano()), Member: id})
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to store message record", slog.String("id", id), slog.Any("error", err))
		return false
	}
	return true
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (message.Record, bool) {
	body, err := s.client.Get(ctx, RecordKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.ErrorContext(ctx, "Failed to fetch message record", slog.String("id", id), slog.Any("error", err))
		}
		return message.Record{}, false
	}
	var rec message.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		slog.ErrorContext(ctx, "Corrupt message record", slog.String("id", id), slog.Any("error", err))
		return message.Record{}, false
	}
	return rec, true
}

// List reads the index newest first and drops ids whose record expired.
func (s *RedisStore) List(ctx context.Context, f message.Filter) ([]message.Record, error) {
	ids, err := s.client.ZRevRange(ctx, RecordIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []message.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = RecordKeyPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var stale []interface{}
	records := make([]message.Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec message.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, RecordIndexKey, stale...).Err(); err != nil {
			slog.WarnContext(ctx, "Failed to prune message index", slog.Any("error", err))
		}
	}
	return f.Apply(records), nil
}
