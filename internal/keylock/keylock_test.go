package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_SerializesSameKey(t *testing.T) {
	m := New()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("g\x00p")
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.Len())
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	unlockA := m.Lock(Key("g1", "a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock(Key("g1", "b"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "lock on a different key blocked")
	}
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestGroupKey_DistinctFromParticipantKeys(t *testing.T) {
	assert.NotEqual(t, GroupKey("guild-1"), Key("guild-1", ""))
	assert.NotEqual(t, GroupKey("guild-1"), Key("guild-1", "member-1"))

	m := New()
	unlockPair := m.Lock(Key("guild-1", "member-1"))
	unlockGroup := m.Lock(GroupKey("guild-1"))
	assert.Equal(t, 2, m.Len())
	unlockGroup()
	unlockPair()
	assert.Equal(t, 0, m.Len())
}
