package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobsOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var fast, slow atomic.Int32

	s := New(clock, nil,
		Job{Name: "fast", Interval: time.Second, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "slow", Interval: 30 * time.Second, Run: func(context.Context) error {
			slow.Add(1)
			return nil
		}},
	)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fast.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(0), slow.Load())

	clock.Advance(29 * time.Second)
	require.Eventually(t, func() bool { return slow.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_StartTwice(t *testing.T) {
	s := New(clockwork.NewFakeClock(), nil)
	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
	require.True(t, s.Running())

	s.Stop()
	s.Stop()
	require.False(t, s.Running())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_RunOnceJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	s := New(clockwork.NewFakeClock(), nil,
		Job{Name: "a", Interval: time.Second, Run: func(context.Context) error {
			calls.Add(1)
			return boom
		}},
		Job{Name: "b", Interval: time.Second, Run: func(context.Context) error {
			calls.Add(1)
			return nil
		}},
		Job{Name: "ignored", Interval: 0, Run: func(context.Context) error {
			calls.Add(1)
			return nil
		}},
	)

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(2), calls.Load())
}
