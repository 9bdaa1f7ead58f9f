// ABOUTME: Tests for the inbound delivery dedupe cache.
// ABOUTME: Validates TTL expiration, capacity eviction, and concurrent marking.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuplicate_FirstDeliveryIsNew(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Duplicate("msg-1"))
	assert.True(t, cache.Duplicate("msg-1"))
}

func TestDuplicate_DistinctKeysIndependent(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Duplicate("user1:msg-1"))
	assert.False(t, cache.Duplicate("user2:msg-1"))
	assert.True(t, cache.Duplicate("user1:msg-1"))
}

func TestDuplicate_TTLExpiry(t *testing.T) {
	cache := New(20*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.Duplicate("msg-1"))
	time.Sleep(40 * time.Millisecond)

	// Expired: the redelivery counts as new again.
	assert.False(t, cache.Duplicate("msg-1"))
}

func TestDuplicate_CapacityEvictsOldest(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	for i := 0; i < 3; i++ {
		cache.Duplicate(fmt.Sprintf("msg-%d", i))
	}
	// Inserting a fourth evicts msg-0.
	cache.Duplicate("msg-3")

	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Duplicate("msg-0"), "evicted key counts as new")
}

func TestDuplicate_ConcurrentSameKey(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	var newCount int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.Duplicate("same-key") {
				atomic.AddInt64(&newCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), newCount, "exactly one delivery wins")
}

func TestClose_Idempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
