package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "otp:v1:"
	redisMaxAttempts = 4
)

var (
	// ErrStoreUnavailable wraps transport and encoding failures of a remote store.
	ErrStoreUnavailable = errors.New("otp store unavailable")
	// ErrStoreContention is returned when an Update keeps losing optimistic races.
	ErrStoreContention = errors.New("otp store contention")
)

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps records in Redis, one JSON value per identifier, expiring
// each key at the record's RetainUntil.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore builds a Redis-backed store. now is used to turn RetainUntil
// into a key TTL; nil means the wall clock.
func NewRedisStore(client redis.UniversalClient, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, prefix: redisKeyPrefix, now: now}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	return s.read(ctx, s.client, s.key(key))
}

func (s *RedisStore) Put(ctx context.Context, key string, rec Record) error {
	k := s.key(key)
	ttl := s.ttl(rec)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrStoreUnavailable, err)
	}
	if err := s.client.Set(ctx, k, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Update watches the key, runs fn and commits in MULTI/EXEC. A concurrent
// writer aborts the transaction and fn is run again on fresh state.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := s.key(key)

	for i := 0; i < redisMaxAttempts; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, found, err := s.read(ctx, tx, k)
			if err != nil {
				return err
			}

			next, op := fn(rec, found)
			switch op {
			case OpKeep:
				return nil
			case OpPut:
				if ttl := s.ttl(next); ttl > 0 {
					data, err := json.Marshal(next)
					if err != nil {
						return fmt.Errorf("%w: encode record: %v", ErrStoreUnavailable, err)
					}
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Set(ctx, k, data, ttl)
						return nil
					})
					return err
				}
			}

			if !found {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, k)
				return nil
			})
			return err
		}, k)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	return ErrStoreContention
}

func (s *RedisStore) read(ctx context.Context, c stringGetter, k string) (Record, bool, error) {
	data, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("%w: decode record: %v", ErrStoreUnavailable, err)
	}
	return rec, true, nil
}

// ttl is the remaining lifetime of rec, rounded down to whole milliseconds
// because Redis cannot expire with finer precision.
func (s *RedisStore) ttl(rec Record) time.Duration {
	return rec.RetainUntil.Sub(s.now()).Truncate(time.Millisecond)
}
