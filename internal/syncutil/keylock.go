package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 256

// KeyLock serializes work per key over a fixed pool of channel mutexes.
// Distinct keys may share a shard; that only costs throughput.
type KeyLock struct {
	shards [shardCount]chan struct{}
}

// NewKeyLock returns a KeyLock with every shard unlocked.
func NewKeyLock() *KeyLock {
	k := &KeyLock{}
	for i := range k.shards {
		k.shards[i] = make(chan struct{}, 1)
		k.shards[i] <- struct{}{}
	}
	return k
}

// Lock acquires the shard for key, or returns ctx.Err() if ctx ends while
// waiting. A free shard is taken even when ctx is already done.
// On success the returned func releases the lock and must be called exactly once.
func (k *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	shard := k.shards[shardIndex(key)]
	unlock := func() { shard <- struct{}{} }
	select {
	case <-shard:
		return unlock, nil
	default:
	}
	select {
	case <-shard:
		return unlock, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
