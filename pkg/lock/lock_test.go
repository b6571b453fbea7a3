package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treasuryops/hedgeledger/pkg/lock"
)

func TestKeyedMutex_SerializesSameEvent(t *testing.T) {
	m := lock.NewKeyedMutex()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "EVT-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r2, err := m.Acquire(ctx, "EVT-1")
		assert.NoError(t, err)
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestKeyedMutex_IndependentEventsDoNotContend(t *testing.T) {
	m := lock.NewKeyedMutex()
	ctx := context.Background()

	r1, err := m.Acquire(ctx, "EVT-1")
	require.NoError(t, err)
	defer r1()

	done := make(chan struct{})
	go func() {
		r2, err := m.Acquire(ctx, "EVT-2")
		assert.NoError(t, err)
		r2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct events must not block each other")
	}
}

func TestKeyedMutex_AcquireHonorsContext(t *testing.T) {
	m := lock.NewKeyedMutex()

	release, err := m.Acquire(context.Background(), "EVT-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "EVT-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_ManyConcurrentHolders(t *testing.T) {
	m := lock.NewKeyedMutex()
	ctx := context.Background()

	var held int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "EVT-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			held++
			assert.Equal(t, 1, held, "at most one holder at a time")
			held--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
}
