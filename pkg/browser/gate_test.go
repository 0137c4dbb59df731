package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/browser"
)

func TestGate_LimitEnforced(t *testing.T) {
	gate := browser.NewGate(2)
	ctx := context.Background()

	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))
	assert.Equal(t, 2, gate.InUse())

	// The third slot is unavailable without a release.
	assert.False(t, gate.TryAcquire())

	gate.Release()
	assert.True(t, gate.TryAcquire())
	assert.Equal(t, 2, gate.InUse())

	gate.Release()
	gate.Release()
	assert.Equal(t, 0, gate.InUse())
}

func TestGate_AcquireBlocksUntilRelease(t *testing.T) {
	gate := browser.NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		if err := gate.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	gate.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed after release")
	}
}

func TestGate_AcquireHonorsContext(t *testing.T) {
	gate := browser.NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Acquire(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, gate.InUse())
}

func TestGate_DefaultLimit(t *testing.T) {
	gate := browser.NewGate(0)
	assert.Equal(t, browser.DefaultSessionLimit, gate.Limit())
}
