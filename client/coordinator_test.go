package client

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshCoordinator_TryAcquireIsExclusive(t *testing.T) {
	c := NewRefreshCoordinator()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, c.InFlight())
}

func TestRefreshCoordinator_OnSettledWhenIdle(t *testing.T) {
	c := NewRefreshCoordinator()
	called := false
	assert.False(t, c.OnSettled(func(RefreshResult) { called = true }))
	c.Release(RefreshResult{})
	assert.False(t, called)
}

func TestRefreshCoordinator_ReleaseResumesWaitersInOrder(t *testing.T) {
	c := NewRefreshCoordinator()
	require.True(t, c.TryAcquire())

	var order []int
	var tokens []string
	for i := 0; i < 5; i++ {
		require.True(t, c.OnSettled(func(r RefreshResult) {
			order = append(order, i)
			tokens = append(tokens, r.AccessToken)
		}))
	}
	assert.Equal(t, 5, c.Waiting())

	c.Release(RefreshResult{AccessToken: "T2"})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, []string{"T2", "T2", "T2", "T2", "T2"}, tokens)
	assert.False(t, c.InFlight())
	assert.Zero(t, c.Waiting())
}

func TestRefreshCoordinator_ReleaseOnFailureClearsFlag(t *testing.T) {
	c := NewRefreshCoordinator()
	require.True(t, c.TryAcquire())

	boom := errors.New("refresh rejected")
	var got error
	require.True(t, c.OnSettled(func(r RefreshResult) { got = r.Err }))
	c.Release(RefreshResult{Err: boom})

	assert.ErrorIs(t, got, boom)
	assert.True(t, c.TryAcquire(), "a later expiry must be able to start a new refresh")
}

func TestRefreshCoordinator_WaitersAfterReleaseAreNotReplayed(t *testing.T) {
	c := NewRefreshCoordinator()
	require.True(t, c.TryAcquire())
	calls := 0
	require.True(t, c.OnSettled(func(RefreshResult) { calls++ }))
	c.Release(RefreshResult{AccessToken: "T2"})

	require.True(t, c.TryAcquire())
	c.Release(RefreshResult{AccessToken: "T3"})
	assert.Equal(t, 1, calls)
}
