package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	k := NewKeyLock()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "wallet")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestKeyLock_ContextCancelled(t *testing.T) {
	k := NewKeyLock()
	unlock, err := k.Lock(context.Background(), "wallet")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "wallet")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyLock_FreeShardIgnoresDoneContext(t *testing.T) {
	k := NewKeyLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 20; i++ {
		unlock, err := k.Lock(ctx, "wallet")
		require.NoError(t, err)
		unlock()
	}
}

func TestKeyLock_Reacquire(t *testing.T) {
	k := NewKeyLock()
	for i := 0; i < 3; i++ {
		unlock, err := k.Lock(context.Background(), "a")
		require.NoError(t, err)
		unlock()
	}
}
