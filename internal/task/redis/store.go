// Package redis keeps task progress and chord joins in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/frahmantamala/document-management/internal/task"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dm:task:"

type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// NewClient parses a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func resultKey(id string) string    { return keyPrefix + "result:" + id }
func chordKey(id string) string     { return keyPrefix + "chord:" + id }
func chordDoneKey(id string) string { return keyPrefix + "chord:" + id + ":done" }
func chordFailKey(id string) string { return keyPrefix + "chord:" + id + ":failed" }

func (s *Store) Set(ctx context.Context, id string, p task.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store progress %s: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (task.Progress, bool, error) {
	data, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return task.Progress{}, false, nil
	}
	if err != nil {
		return task.Progress{}, false, fmt.Errorf("load progress %s: %w", id, err)
	}
	var p task.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return task.Progress{}, false, fmt.Errorf("decode progress %s: %w", id, err)
	}
	return p, true, nil
}

func (s *Store) JoinChord(ctx context.Context, chordID string, index, size int, result json.RawMessage) ([]json.RawMessage, bool, error) {
	key := chordKey(chordID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(index), []byte(result))
	pipe.Expire(ctx, key, s.ttl)
	joined := pipe.HLen(ctx, key)
	failed := pipe.Exists(ctx, chordFailKey(chordID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("join chord %s: %w", chordID, err)
	}
	if joined.Val() < int64(size) || failed.Val() > 0 {
		return nil, false, nil
	}

	won, err := s.client.SetNX(ctx, chordDoneKey(chordID), 1, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("complete chord %s: %w", chordID, err)
	}
	if !won {
		return nil, false, nil
	}

	all, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("collect chord %s: %w", chordID, err)
	}
	out := make([]json.RawMessage, size)
	for i := range out {
		out[i] = json.RawMessage(all[strconv.Itoa(i)])
	}
	return out, true, nil
}

func (s *Store) FailChord(ctx context.Context, chordID string) (bool, error) {
	first, err := s.client.SetNX(ctx, chordFailKey(chordID), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("fail chord %s: %w", chordID, err)
	}
	return first, nil
}

var _ task.ResultStore = (*Store)(nil)
