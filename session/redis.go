package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any Redis failure other than a missing key.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisPersister keeps one JSON record per session under <prefix>:<sid>, plus
// a set of session ids per subject under <prefix>:s:<subject>.
type RedisPersister struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisPersister returns a persister using rdb. An empty prefix defaults
// to "as".
func NewRedisPersister(rdb redis.UniversalClient, prefix string) *RedisPersister {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisPersister{redis: rdb, prefix: prefix}
}

func (p *RedisPersister) key(id string) string {
	return p.prefix + ":" + id
}

func (p *RedisPersister) subjectKey(subject string) string {
	return p.prefix + ":s:" + subject
}

// Save writes rec and indexes it under its subject.
func (p *RedisPersister) Save(ctx context.Context, rec Record, ttl time.Duration) error {
	if rec.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrRecordCorrupt)
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key(rec.SessionID), data, ttl)
		if rec.ID != "" {
			pipe.SAdd(ctx, p.subjectKey(rec.ID), rec.SessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load reads the record for id.
func (p *RedisPersister) Load(ctx context.Context, id string) (Record, error) {
	data, err := p.redis.Get(ctx, p.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := DecodeRecord(data)
	if err != nil {
		return Record{}, err
	}
	if rec.SessionID == "" {
		rec.SessionID = id
	}
	return rec, nil
}

// Delete removes the record for id. Deleting a missing record is not an error.
func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	key := p.key(id)

	data, err := p.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var subject string
	if rec, err := DecodeRecord(data); err == nil {
		subject = rec.ID
	}

	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if subject != "" {
			pipe.SRem(ctx, p.subjectKey(subject), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SessionIDs returns the live session ids recorded for subject. Ids whose
// record has expired are pruned from the index.
func (p *RedisPersister) SessionIDs(ctx context.Context, subject string) ([]string, error) {
	ids, err := p.redis.SMembers(ctx, p.subjectKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := p.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		existsCmds[i] = pipe.Exists(ctx, p.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	var stale []any
	for i, cmd := range existsCmds {
		n, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		if n > 0 {
			live = append(live, ids[i])
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := p.redis.SRem(ctx, p.subjectKey(subject), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return live, nil
}

// DeleteAllForSubject removes every record indexed under subject.
func (p *RedisPersister) DeleteAllForSubject(ctx context.Context, subject string) (int, error) {
	subjectKey := p.subjectKey(subject)

	ids, err := p.redis.SMembers(ctx, subjectKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, p.key(id))
	}

	var deleted *redis.IntCmd
	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, subjectKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// Ping measures a round trip to Redis.
func (p *RedisPersister) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := p.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
