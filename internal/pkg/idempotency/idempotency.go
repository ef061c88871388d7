// Package idempotency guards operations keyed by a client supplied
// idempotency key using Redis SET NX.
//
// A key moves none -> in_progress -> completed. A failed operation releases
// its key so the client can retry with the same key.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("idempotency: operation already in progress")
	ErrAlreadyCompleted  = errors.New("idempotency: operation already completed")
	ErrInvalidState      = errors.New("idempotency: invalid state")
)

type State string

const (
	StateNone       State = "none"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Guard runs fn at most once per key.
type Guard interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

// StateTracker implements Guard on Redis.
type StateTracker struct {
	client redis.UniversalClient
	prefix string
}

// New creates a tracker storing keys under prefix.
func New(client redis.UniversalClient, prefix string) *StateTracker {
	if prefix == "" {
		prefix = "idempotency:"
	}
	return &StateTracker{client: client, prefix: prefix}
}

type execOptions struct {
	lockDuration time.Duration
	stateTTL     time.Duration
}

type Option func(*execOptions)

// WithLockDuration bounds how long an in-progress key blocks duplicates if
// the process dies before finishing.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lockDuration = d }
}

// WithStateTTL sets how long a completed key rejects duplicates.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.stateTTL = d }
}

// Acquire claims key. StateNone means the caller now owns it.
func (s *StateTracker) Acquire(ctx context.Context, key string, lock time.Duration) (State, error) {
	fk := s.prefix + key

	ok, err := s.client.SetNX(ctx, fk, string(StateInProgress), lock).Result()
	if err != nil {
		return "", fmt.Errorf("idempotency: acquire: %w", err)
	}
	if ok {
		return StateNone, nil
	}

	cur, err := s.client.Get(ctx, fk).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Acquire(ctx, key, lock)
	}
	if err != nil {
		return "", fmt.Errorf("idempotency: read state: %w", err)
	}

	switch State(cur) {
	case StateInProgress, StateCompleted:
		return State(cur), nil
	default:
		return "", ErrInvalidState
	}
}

func (s *StateTracker) markCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, string(StateCompleted), ttl).Err()
}

func (s *StateTracker) release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Exec runs fn if key is unclaimed. Duplicates get ErrAlreadyInProgress or
// ErrAlreadyCompleted. When fn fails the key is released and fn's error returned.
// Once fn has succeeded Exec returns nil even if the completed state cannot be
// written; the key then stays in progress until its lock expires.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := execOptions{lockDuration: time.Minute, stateTTL: 10 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	state, err := s.Acquire(ctx, key, o.lockDuration)
	if err != nil {
		return err
	}

	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	}

	if err := fn(ctx); err != nil {
		if relErr := s.release(context.WithoutCancel(ctx), key); relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}

	if err := s.markCompleted(context.WithoutCancel(ctx), key, o.stateTTL); err != nil {
		slog.ErrorContext(ctx, "failed to mark idempotency key completed", "key", key, "error", err)
	}

	return nil
}
