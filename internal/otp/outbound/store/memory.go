package store

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"go.uber.org/atomic"
)

const memoryShards = 64

type memoryShard struct {
	mu      sync.RWMutex
	records map[string]entity.Record
}

// Memory keeps records in process. Sessions are spread over shards by
// xxhash so unrelated sessions do not contend on one lock.
type Memory struct {
	opts   Options
	shards [memoryShards]*memoryShard
	size   *atomic.Int64
}

func NewMemory(opts Options) *Memory {
	m := &Memory{opts: opts.withDefaults(), size: atomic.NewInt64(0)}
	for i := range m.shards {
		m.shards[i] = &memoryShard{records: make(map[string]entity.Record)}
	}
	return m
}

func (m *Memory) shard(sessionID string) *memoryShard {
	return m.shards[xxhash.Sum64String(sessionID)%memoryShards]
}

// Len returns the number of stored records, expired ones included.
func (m *Memory) Len() int {
	return int(m.size.Load())
}

func (m *Memory) Issue(_ context.Context, sessionID string) (*entity.Record, error) {
	rec := entity.Record{
		SessionID: sessionID,
		Code:      m.opts.Generator.Generate(),
		ExpiresAt: m.opts.Clock.Now().Add(m.opts.TTL),
	}

	s := m.shard(sessionID)
	s.mu.Lock()
	if _, ok := s.records[sessionID]; !ok {
		m.size.Inc()
	}
	s.records[sessionID] = rec
	s.mu.Unlock()

	return &rec, nil
}

func (m *Memory) Lookup(_ context.Context, sessionID string) (*entity.Record, error) {
	s := m.shard(sessionID)
	s.mu.RLock()
	rec, ok := s.records[sessionID]
	s.mu.RUnlock()

	if !ok || !rec.Live(m.opts.Clock.Now()) {
		return nil, goerror.ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) RecordFailedAttempt(_ context.Context, sessionID string) (int, error) {
	s := m.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok || !rec.Live(m.opts.Clock.Now()) {
		return 0, nil
	}

	rec.Attempts++
	s.records[sessionID] = rec
	return rec.Attempts, nil
}

func (m *Memory) Consume(_ context.Context, sessionID string) error {
	s := m.shard(sessionID)
	s.mu.Lock()
	if _, ok := s.records[sessionID]; ok {
		delete(s.records, sessionID)
		m.size.Dec()
	}
	s.mu.Unlock()

	return nil
}

func (m *Memory) CompareAndConsume(_ context.Context, sessionID, code string) (bool, error) {
	s := m.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok || !rec.Live(m.opts.Clock.Now()) || rec.Code != code {
		return false, nil
	}

	delete(s.records, sessionID)
	m.size.Dec()
	return true, nil
}

// Sweep locks one shard at a time, so a record re-issued during the sweep is
// judged by its new expiry.
func (m *Memory) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for _, s := range m.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		now := m.opts.Clock.Now()
		s.mu.Lock()
		for id, rec := range s.records {
			if !rec.Live(now) {
				delete(s.records, id)
				removed++
			}
		}
		s.mu.Unlock()
	}

	m.size.Sub(int64(removed))
	return removed, nil
}

func (m *Memory) Close() error {
	return nil
}
