package store

import (
	"context"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const (
	defaultRedisPrefix = "otp:"
	maxTxRetries       = 32
)

var errTxRetriesExhausted = errors.New("optimistic transaction retries exhausted")

type redisRecord struct {
	Code      string `cbor:"1,keyasint"`
	ExpiresAt int64  `cbor:"2,keyasint"`
	Attempts  int    `cbor:"3,keyasint"`
}

// Redis stores one CBOR encoded value per session with a PX expiry. Mutations
// of an existing record run in WATCH/MULTI transactions.
type Redis struct {
	client redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedis(client redis.UniversalClient, prefix string, opts Options) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, opts: opts.withDefaults()}
}

func (r *Redis) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *Redis) Issue(ctx context.Context, sessionID string) (*entity.Record, error) {
	rec := entity.Record{
		SessionID: sessionID,
		Code:      r.opts.Generator.Generate(),
		ExpiresAt: r.opts.Clock.Now().Add(r.opts.TTL).Truncate(time.Millisecond),
	}

	raw, err := encodeRecord(rec)
	if err != nil {
		return nil, unavailable("issue", err)
	}

	if err := r.client.Set(ctx, r.key(sessionID), raw, r.opts.TTL).Err(); err != nil {
		return nil, unavailable("issue", err)
	}

	return &rec, nil
}

func (r *Redis) Lookup(ctx context.Context, sessionID string) (*entity.Record, error) {
	rec, err := r.get(ctx, r.client, sessionID)
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	if !rec.Live(r.opts.Clock.Now()) {
		return nil, goerror.ErrNotFound
	}
	return rec, nil
}

func (r *Redis) RecordFailedAttempt(ctx context.Context, sessionID string) (int, error) {
	attempts := 0
	err := r.watch(ctx, sessionID, func(tx *redis.Tx) error {
		rec, err := r.get(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		now := r.opts.Clock.Now()
		if !rec.Live(now) {
			attempts = 0
			return nil
		}

		rec.Attempts++
		raw, err := encodeRecord(*rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(sessionID), raw, rec.ExpiresAt.Sub(now))
			return nil
		})
		if err == nil {
			attempts = rec.Attempts
		}
		return err
	})
	if err != nil {
		return 0, unavailable("record failed attempt", err)
	}

	return attempts, nil
}

func (r *Redis) Consume(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return unavailable("consume", err)
	}
	return nil
}

func (r *Redis) CompareAndConsume(ctx context.Context, sessionID, code string) (bool, error) {
	consumed := false
	err := r.watch(ctx, sessionID, func(tx *redis.Tx) error {
		consumed = false

		rec, err := r.get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !rec.Live(r.opts.Clock.Now()) || rec.Code != code {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.key(sessionID))
			return nil
		})
		consumed = err == nil
		return err
	})
	if err != nil {
		return false, unavailable("compare and consume", err)
	}

	return consumed, nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (r *Redis) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Close leaves the shared client open; its owner closes it.
func (r *Redis) Close() error {
	return nil
}

func (r *Redis) watch(ctx context.Context, sessionID string, fn func(tx *redis.Tx) error) error {
	for range maxTxRetries {
		err := r.client.Watch(ctx, fn, r.key(sessionID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxRetriesExhausted
}

// get returns nil, nil when the key does not exist.
func (r *Redis) get(ctx context.Context, c redis.StringCmdable, sessionID string) (*entity.Record, error) {
	raw, err := c.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rr redisRecord
	if err := cbor.Unmarshal(raw, &rr); err != nil {
		return nil, err
	}

	return &entity.Record{
		SessionID: sessionID,
		Code:      rr.Code,
		ExpiresAt: time.UnixMilli(rr.ExpiresAt),
		Attempts:  rr.Attempts,
	}, nil
}

func encodeRecord(rec entity.Record) ([]byte, error) {
	return cbor.Marshal(redisRecord{
		Code:      rec.Code,
		ExpiresAt: rec.ExpiresAt.UnixMilli(),
		Attempts:  rec.Attempts,
	})
}
