package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSameKeyRunsInOrder(t *testing.T) {
	d := New(context.Background(), 0)
	defer d.Close()

	var mu sync.Mutex
	var order []int
	var running atomic.Int32
	var results []<-chan Result

	for i := range 5 {
		_, done, err := d.Submit(context.Background(), "Alice", func(context.Context) (any, error) {
			if running.Add(1) != 1 {
				t.Error("jobs for the same key overlapped")
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
			return i, nil
		})
		require.NoError(t, err)
		results = append(results, done)
	}

	for i, done := range results {
		r := <-done
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Value)
		assert.Equal(t, "Alice", r.Key)
		assert.NotEmpty(t, r.JobID)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	d := New(context.Background(), 0)
	defer d.Close()

	release := make(chan struct{})
	started := make(chan string, 2)

	block := func(name string) Func {
		return func(context.Context) (any, error) {
			started <- name
			<-release
			return nil, nil
		}
	}

	_, a, err := d.Submit(context.Background(), "Alice", block("Alice"))
	require.NoError(t, err)
	_, b, err := d.Submit(context.Background(), "Bob", block("Bob"))
	require.NoError(t, err)

	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("second key did not start while the first was blocked")
		}
	}
	close(release)
	<-a
	<-b
}

func TestErrorsAndPanicsAreResults(t *testing.T) {
	d := New(context.Background(), 0)
	defer d.Close()

	boom := errors.New("boom")
	_, done, err := d.Submit(context.Background(), "k", func(context.Context) (any, error) { return nil, boom })
	require.NoError(t, err)
	assert.ErrorIs(t, (<-done).Err, boom)

	_, done, err = d.Submit(context.Background(), "k", func(context.Context) (any, error) { panic("bad") })
	require.NoError(t, err)
	assert.ErrorContains(t, (<-done).Err, "panicked")

	_, done, err = d.Submit(context.Background(), "k", func(context.Context) (any, error) { return "still works", nil })
	require.NoError(t, err)
	assert.Equal(t, "still works", (<-done).Value)
}

func TestDo(t *testing.T) {
	d := New(context.Background(), 0)
	defer d.Close()

	got, err := Do(context.Background(), d, "k", func(context.Context) (string, error) { return "hi", nil })
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = Do(context.Background(), d, "k", func(context.Context) (int, error) { return 0, errors.New("nope") })
	assert.EqualError(t, err, "nope")
}

func TestCloseDrainsQueue(t *testing.T) {
	d := New(context.Background(), 0)

	var ran atomic.Int32
	var results []<-chan Result
	for range 3 {
		_, done, err := d.Submit(context.Background(), "k", func(context.Context) (any, error) {
			time.Sleep(2 * time.Millisecond)
			ran.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
		results = append(results, done)
	}

	require.NoError(t, d.Close())
	assert.Equal(t, int32(3), ran.Load())
	for _, done := range results {
		assert.NoError(t, (<-done).Err)
	}

	_, _, err := d.Submit(context.Background(), "k", func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, d.Close(), "Close is idempotent")
}

func TestAbortFailsQueuedJobs(t *testing.T) {
	d := New(context.Background(), 0)

	started := make(chan struct{})
	_, first, err := d.Submit(context.Background(), "k", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	_, second, err := d.Submit(context.Background(), "k", func(context.Context) (any, error) {
		t.Error("queued job ran after Abort")
		return nil, nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Abort())
	assert.ErrorIs(t, (<-first).Err, context.Canceled)
	assert.ErrorIs(t, (<-second).Err, context.Canceled)
}

func TestSubmitHonorsContext(t *testing.T) {
	d := New(context.Background(), 1)
	defer d.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	_, first, err := d.Submit(context.Background(), "k", func(context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started
	_, second, err := d.Submit(context.Background(), "k", func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = d.Submit(ctx, "k", func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-first
	<-second
}
