package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

func TestPoolRunsEverySubmittedTask(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("all submitted tasks run before Stop returns", prop.ForAll(
		func(numTasks, workers int) bool {
			p := NewPool(logger.NewNop(), workers, nil)
			p.Start(context.Background())

			var ran atomic.Int64
			for i := 0; i < numTasks; i++ {
				if err := p.Submit(context.Background(), func(context.Context) { ran.Add(1) }); err != nil {
					return false
				}
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.Stop(ctx); err != nil {
				return false
			}
			return ran.Load() == int64(numTasks)
		},
		gen.IntRange(0, 200),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

func TestPoolSubmitAfterStop(t *testing.T) {
	p := NewPool(logger.NewNop(), 2, nil)
	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))

	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Stop(context.Background()), "second Stop is a no-op")
}

func TestPoolRecoversPanics(t *testing.T) {
	metrics := observability.New()
	p := NewPool(logger.NewNop(), 1, metrics)
	p.Start(context.Background())

	var after atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { after.Store(true) }))
	require.NoError(t, p.Stop(context.Background()))

	assert.True(t, after.Load(), "worker must survive a panicking task")
}

func TestPoolStopWithoutStartDrainsInline(t *testing.T) {
	p := NewPool(logger.NewNop(), 1, nil)
	var ran atomic.Int64
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { ran.Add(1) }))
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.EqualValues(t, 3, ran.Load())
}

func TestPoolStopHonorsDeadline(t *testing.T) {
	p := NewPool(logger.NewNop(), 1, nil)
	p.Start(context.Background())

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
}

func TestPoolSubmitRejectsNil(t *testing.T) {
	p := NewPool(logger.NewNop(), 1, nil)
	assert.Error(t, p.Submit(context.Background(), nil))
}
