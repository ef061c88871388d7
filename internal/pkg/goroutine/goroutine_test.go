package goroutine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RunsAndCollectsErrors(t *testing.T) {
	m := NewManager(4)
	errBoom := errors.New("boom")

	done := make(chan struct{})
	require.True(t, m.Go(context.Background(), "ok", func(context.Context) error {
		close(done)
		return nil
	}))
	require.True(t, m.Go(context.Background(), "fail", func(context.Context) error {
		return errBoom
	}))

	<-done
	assert.ErrorIs(t, m.Wait(), errBoom)
}

func TestManager_DropsWhenFull(t *testing.T) {
	m := NewManager(1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, m.Go(context.Background(), "blocker", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	assert.False(t, m.Go(context.Background(), "dropped", func(context.Context) error {
		t.Error("dropped task must not run")
		return nil
	}))

	close(release)
	assert.NoError(t, m.Wait())
}

func TestManager_RecoversPanic(t *testing.T) {
	m := NewManager(1)

	require.True(t, m.Go(context.Background(), "panic", func(context.Context) error {
		panic("kaboom")
	}))

	assert.NoError(t, m.Wait())
}

func TestManager_ClosedAfterWait(t *testing.T) {
	m := NewManager(1)
	require.NoError(t, m.Wait())

	assert.False(t, m.Go(context.Background(), "late", func(context.Context) error { return nil }))
}

func TestManager_SkipsCanceledContext(t *testing.T) {
	m := NewManager(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	m.Go(ctx, "canceled", func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, m.Wait())
	assert.False(t, ran)
}

func TestManager_NilSafe(t *testing.T) {
	var m *Manager
	assert.False(t, m.Go(context.Background(), "nil", func(context.Context) error { return nil }))
	assert.NoError(t, m.Wait())
}
