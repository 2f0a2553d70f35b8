package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunRespectsLimit(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	var inFlight, maxInFlight, progress atomic.Int32
	var mu sync.Mutex
	seen := make(map[int]int)

	err := Run(context.Background(), items, 3, func(ctx context.Context, item int) error {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen[item]++
		mu.Unlock()
		inFlight.Add(-1)
		return nil
	}, WithProgress(func() { progress.Add(1) }))

	require.NoError(t, err)
	require.LessOrEqual(t, maxInFlight.Load(), int32(3))
	require.Len(t, seen, 10)
	for item, count := range seen {
		require.Equal(t, 1, count, "item %d processed %d times", item, count)
	}
	require.Equal(t, int32(10), progress.Load())
}

func TestRunStopsStartingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var started, finished atomic.Int32
	err := Run(context.Background(), items, 2, func(ctx context.Context, item int) error {
		started.Add(1)
		defer finished.Add(1)
		if item == 0 {
			return boom
		}
		time.Sleep(2 * time.Millisecond)
		return nil
	})

	require.ErrorIs(t, err, boom)
	require.Less(t, started.Load(), int32(100))
	require.Equal(t, started.Load(), finished.Load(), "every started item must finish")
}

func TestRunDoesNotCancelInFlight(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	var slowCtxErr error

	err := Run(context.Background(), []string{"slow", "fail"}, 2, func(ctx context.Context, item string) error {
		if item == "fail" {
			defer close(release)
			return boom
		}
		<-release
		time.Sleep(time.Millisecond)
		slowCtxErr = ctx.Err()
		return nil
	})

	require.ErrorIs(t, err, boom)
	require.NoError(t, slowCtxErr)
}

func TestRunEmpty(t *testing.T) {
	called := false
	err := Run(context.Background(), nil, 4, func(ctx context.Context, item int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestStreamPropagatesSequenceError(t *testing.T) {
	bad := errors.New("bad line")
	seq := func(yield func(int, error) bool) {
		if !yield(1, nil) {
			return
		}
		yield(0, bad)
	}

	var calls atomic.Int32
	err := Stream(context.Background(), seq, 1, func(ctx context.Context, item int) error {
		calls.Add(1)
		return nil
	})
	require.ErrorIs(t, err, bad)
	require.Equal(t, int32(1), calls.Load())
}

func TestRunReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, []int{1, 2, 3}, 1, func(ctx context.Context, item int) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
