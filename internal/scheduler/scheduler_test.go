package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TriggerRunsRebuild(t *testing.T) {
	var calls atomic.Int32
	s := New(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, zerolog.Nop())

	require.NoError(t, s.Trigger(context.Background()))
	require.NoError(t, s.Trigger(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_TriggerPropagatesError(t *testing.T) {
	wantErr := errors.New("build broke")
	s := New(func(ctx context.Context) error { return wantErr }, zerolog.Nop())

	assert.ErrorIs(t, s.Trigger(context.Background()), wantErr)
}

func TestScheduler_ConcurrentTriggersSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s := New(func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Trigger(context.Background())
	}()

	// Wait for the first trigger to take the guard.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// Overlapping triggers are skipped, not queued.
	require.NoError(t, s.Trigger(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	wg.Wait()

	// The guard releases once the build finishes.
	require.NoError(t, s.Trigger(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, zerolog.Nop())
	assert.Error(t, s.Start("not a cron spec"))
	assert.NoError(t, s.Start(""))
}
