package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

func TestAcquireRelease(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()
	key := ContainerKey(status.ContainerTask, "t1")

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, l.Held(key))

	release()
	assert.False(t, l.Held(key))
}

func TestReentrantAcquire(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()
	ctx := EnsureToken(context.Background())
	key := ContainerKey(status.ContainerFeature, "f1")

	outer, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	inner, err := l.Acquire(ctx, key)
	require.NoError(t, err)

	inner()
	assert.True(t, l.Held(key), "outer acquisition still holds the key")
	outer()
	assert.False(t, l.Held(key))
}

func TestTryAcquireContention(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()
	key := ContainerKey(status.ContainerTask, "t1")
	first := EnsureToken(context.Background())
	second := EnsureToken(context.Background())

	release, err := l.Acquire(first, key)
	require.NoError(t, err)

	_, ok := l.TryAcquire(second, key)
	assert.False(t, ok)

	release()
	release2, ok := l.TryAcquire(second, key)
	require.True(t, ok)
	release2()
}

func TestTryAcquireReentrant(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()
	ctx := EnsureToken(context.Background())
	key := ContainerKey(status.ContainerProject, "p1")

	outer, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	inner, ok := l.TryAcquire(ctx, key)
	require.True(t, ok)
	inner()
	outer()
	assert.False(t, l.Held(key))
}

func TestAcquireWaitsForHolder(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()
	key := ContainerKey(status.ContainerTask, "t1")

	release, err := l.Acquire(EnsureToken(context.Background()), key)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(EnsureToken(context.Background()), key)
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder got the lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never got the lock after release")
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()
	key := ContainerKey(status.ContainerTask, "t1")

	release, err := l.Acquire(EnsureToken(context.Background()), key)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(EnsureToken(context.Background()))
	done := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx, key)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter never returned")
	}
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	t.Parallel()
	l := NewKeyedLock()

	r1, err := l.Acquire(EnsureToken(context.Background()), ContainerKey(status.ContainerTask, "shared-id"))
	require.NoError(t, err)
	defer r1()

	// Same id under another container type is a different key.
	r2, ok := l.TryAcquire(EnsureToken(context.Background()), ContainerKey(status.ContainerFeature, "shared-id"))
	require.True(t, ok)
	r2()
}

func TestEnsureTokenIsStable(t *testing.T) {
	t.Parallel()
	ctx := EnsureToken(context.Background())
	tok := TokenFrom(ctx)
	require.NotNil(t, tok)
	assert.Same(t, tok, TokenFrom(EnsureToken(ctx)))

	other := TokenFrom(EnsureToken(context.Background()))
	assert.NotSame(t, tok, other)
}
