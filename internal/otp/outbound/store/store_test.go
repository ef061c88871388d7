package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTTL = 5 * time.Minute

// counterEntropy yields a different byte stream on every read so consecutive
// codes differ.
type counterEntropy struct {
	mu sync.Mutex
	n  byte
}

func (c *counterEntropy) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range p {
		c.n += 37
		p[i] = c.n
	}
	return len(p), nil
}

func testOptions(clk clock.Clocker) Options {
	return Options{
		Generator: otp.NewGenerator(6, otp.WithEntropy(&counterEntropy{})),
		Clock:     clk,
		TTL:       testTTL,
	}
}

type harness struct {
	// newStore returns a fresh, empty store reading time from clk.
	newStore func(t *testing.T, clk *clock.Manual) Store
	// sweeps is false for drivers that rely on backend expiry.
	sweeps bool
}

func runConformance(t *testing.T, h harness) {
	start := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	setup := func(t *testing.T) (Store, *clock.Manual) {
		clk := clock.NewManual(start)
		s := h.newStore(t, clk)
		t.Cleanup(func() { _ = s.Close() })
		return s, clk
	}

	t.Run("issue then lookup", func(t *testing.T) {
		s, _ := setup(t)

		rec, err := s.Issue(ctx, "sess-a")
		require.NoError(t, err)
		assert.Len(t, rec.Code, 6)
		assert.Regexp(t, `^\d{6}$`, rec.Code)
		assert.Zero(t, rec.Attempts)
		assert.WithinDuration(t, start.Add(testTTL), rec.ExpiresAt, time.Millisecond)

		got, err := s.Lookup(ctx, "sess-a")
		require.NoError(t, err)
		assert.Equal(t, rec.Code, got.Code)
		assert.Equal(t, "sess-a", got.SessionID)
		assert.Zero(t, got.Attempts)
	})

	t.Run("lookup missing", func(t *testing.T) {
		s, _ := setup(t)

		_, err := s.Lookup(ctx, "nobody")
		assert.ErrorIs(t, err, goerror.ErrNotFound)
	})

	t.Run("reissue replaces", func(t *testing.T) {
		s, clk := setup(t)

		first, err := s.Issue(ctx, "sess-b")
		require.NoError(t, err)
		_, err = s.RecordFailedAttempt(ctx, "sess-b")
		require.NoError(t, err)

		clk.Advance(time.Minute)
		second, err := s.Issue(ctx, "sess-b")
		require.NoError(t, err)
		require.NotEqual(t, first.Code, second.Code)

		got, err := s.Lookup(ctx, "sess-b")
		require.NoError(t, err)
		assert.Equal(t, second.Code, got.Code)
		assert.Zero(t, got.Attempts)
		assert.WithinDuration(t, start.Add(time.Minute+testTTL), got.ExpiresAt, time.Millisecond)

		ok, err := s.CompareAndConsume(ctx, "sess-b", first.Code)
		require.NoError(t, err)
		assert.False(t, ok, "replaced code must not verify")
	})

	t.Run("expiry is checked on every read", func(t *testing.T) {
		s, clk := setup(t)

		rec, err := s.Issue(ctx, "sess-c")
		require.NoError(t, err)

		clk.Advance(testTTL - time.Second)
		_, err = s.Lookup(ctx, "sess-c")
		require.NoError(t, err)

		clk.Advance(time.Second)
		_, err = s.Lookup(ctx, "sess-c")
		assert.ErrorIs(t, err, goerror.ErrNotFound)

		n, err := s.RecordFailedAttempt(ctx, "sess-c")
		require.NoError(t, err)
		assert.Zero(t, n)

		ok, err := s.CompareAndConsume(ctx, "sess-c", rec.Code)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("failed attempts", func(t *testing.T) {
		s, _ := setup(t)

		_, err := s.Issue(ctx, "sess-d")
		require.NoError(t, err)

		for want := 1; want <= 3; want++ {
			n, err := s.RecordFailedAttempt(ctx, "sess-d")
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		got, err := s.Lookup(ctx, "sess-d")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Attempts)
	})

	t.Run("failed attempt never creates", func(t *testing.T) {
		s, _ := setup(t)

		n, err := s.RecordFailedAttempt(ctx, "ghost")
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = s.Lookup(ctx, "ghost")
		assert.ErrorIs(t, err, goerror.ErrNotFound)
	})

	t.Run("compare and consume", func(t *testing.T) {
		s, _ := setup(t)

		rec, err := s.Issue(ctx, "sess-e")
		require.NoError(t, err)

		ok, err := s.CompareAndConsume(ctx, "sess-e", "x"+rec.Code[1:])
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = s.Lookup(ctx, "sess-e")
		require.NoError(t, err, "mismatch leaves the record")

		ok, err = s.CompareAndConsume(ctx, "sess-e", rec.Code)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.CompareAndConsume(ctx, "sess-e", rec.Code)
		require.NoError(t, err)
		assert.False(t, ok, "a code verifies once")

		_, err = s.Lookup(ctx, "sess-e")
		assert.ErrorIs(t, err, goerror.ErrNotFound)
	})

	t.Run("concurrent compare and consume", func(t *testing.T) {
		s, _ := setup(t)

		rec, err := s.Issue(ctx, "sess-f")
		require.NoError(t, err)

		const workers = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.CompareAndConsume(ctx, "sess-f", rec.Code)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
	})

	t.Run("concurrent failed attempts", func(t *testing.T) {
		s, _ := setup(t)

		_, err := s.Issue(ctx, "sess-g")
		require.NoError(t, err)

		const workers = 10
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RecordFailedAttempt(ctx, "sess-g")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Lookup(ctx, "sess-g")
		require.NoError(t, err)
		assert.Equal(t, workers, got.Attempts)
	})

	t.Run("consume is idempotent", func(t *testing.T) {
		s, _ := setup(t)

		_, err := s.Issue(ctx, "sess-h")
		require.NoError(t, err)

		require.NoError(t, s.Consume(ctx, "sess-h"))
		require.NoError(t, s.Consume(ctx, "sess-h"))
		require.NoError(t, s.Consume(ctx, "never-issued"))

		_, err = s.Lookup(ctx, "sess-h")
		assert.ErrorIs(t, err, goerror.ErrNotFound)
	})

	t.Run("sweep", func(t *testing.T) {
		s, clk := setup(t)

		_, err := s.Issue(ctx, "old-1")
		require.NoError(t, err)
		_, err = s.Issue(ctx, "old-2")
		require.NoError(t, err)

		clk.Advance(testTTL)
		fresh, err := s.Issue(ctx, "fresh")
		require.NoError(t, err)

		n, err := s.Sweep(ctx)
		require.NoError(t, err)
		if h.sweeps {
			assert.Equal(t, 2, n)
		} else {
			assert.Zero(t, n)
		}

		got, err := s.Lookup(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, fresh.Code, got.Code)
	})
}
