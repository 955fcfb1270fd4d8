package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerAllowsUnderLimit(t *testing.T) {
	tracker := NewMemoryTracker(5, time.Hour)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "rpi-abc"))
	}

	allowed, err := tracker.Allowed(ctx, "rpi-abc")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryTrackerDeniesAtLimit(t *testing.T) {
	tracker := NewMemoryTracker(5, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "rpi-abc"))
	}

	allowed, err := tracker.Allowed(ctx, "rpi-abc")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other devices are unaffected.
	allowed, err = tracker.Allowed(ctx, "rpi-other")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryTrackerWindowExpiry(t *testing.T) {
	now := time.Now()
	tracker := NewMemoryTracker(5, time.Hour)
	tracker.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "rpi-abc"))
	}

	allowed, err := tracker.Allowed(ctx, "rpi-abc")
	require.NoError(t, err)
	require.False(t, allowed)

	// Once the failures age past the window the device is admitted again.
	now = now.Add(time.Hour + time.Second)
	allowed, err = tracker.Allowed(ctx, "rpi-abc")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryTrackerAllowedDoesNotRecord(t *testing.T) {
	tracker := NewMemoryTracker(1, time.Hour)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := tracker.Allowed(ctx, "rpi-abc")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestMemoryTrackerConcurrentSameDevice(t *testing.T) {
	tracker := NewMemoryTracker(1000, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = tracker.RecordFailure(ctx, "rpi-abc")
				_, _ = tracker.Allowed(ctx, "rpi-abc")
			}
		}()
	}
	wg.Wait()

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Len(t, tracker.failures["rpi-abc"], 500)
}
