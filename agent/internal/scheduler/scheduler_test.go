package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRunSurvivesTaskErrors(t *testing.T) {
	var runs atomic.Int32
	s := New(5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	})

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx)
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(time.Hour, func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
