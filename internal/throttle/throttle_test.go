package throttle

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleDeniesWithRemainingSeconds(t *testing.T) {
	c := New()

	_, hit := c.Throttled("queue-42")
	require.False(t, hit, "fresh key must not be throttled")

	c.Arm("queue-42", 5*time.Second)

	rem, hit := c.Throttled("queue-42")
	require.True(t, hit)
	assert.Greater(t, rem, 4*time.Second)
	assert.LessOrEqual(t, rem, 5*time.Second)
}

func TestThrottleExpiresLazily(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Arm("queue-42", 5*time.Second)

	now = now.Add(4 * time.Second)
	rem, hit := c.Throttled("queue-42")
	require.True(t, hit)
	assert.Equal(t, time.Second, rem)

	// past expiry the entry is treated as absent and garbage-collected
	now = now.Add(2 * time.Second)
	_, hit = c.Throttled("queue-42")
	assert.False(t, hit)
	_, ok := c.entries["queue-42"]
	assert.False(t, ok, "expired entry should be reaped on lookup")
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	c := New()
	c.Arm("queue-1", time.Minute)
	_, hit := c.Throttled("queue-2")
	assert.False(t, hit)
}

func TestBanAndUnban(t *testing.T) {
	c := New()

	_, banned := c.Banned("42")
	require.False(t, banned)

	c.Ban("42", 10*time.Minute)
	rem, banned := c.Banned("42")
	require.True(t, banned)
	assert.Greater(t, rem, 9*time.Minute)

	c.Unban("42")
	_, banned = c.Banned("42")
	assert.False(t, banned)
}

func TestBanExpires(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Ban("42", time.Minute)
	now = now.Add(2 * time.Minute)
	_, banned := c.Banned("42")
	assert.False(t, banned)
}

func TestOwnership(t *testing.T) {
	c := New()
	c.SetOwner("corr-1", "alice", time.Hour)

	assert.True(t, c.IsOwner("alice", "corr-1"))
	assert.False(t, c.IsOwner("bob", "corr-1"), "mismatch is not an owner")
	assert.False(t, c.IsOwner("alice", "corr-2"), "absence is not an owner")

	c.EvictOwner("corr-1")
	assert.False(t, c.IsOwner("alice", "corr-1"))
}

func TestOwnershipExpires(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.SetOwner("corr-1", "alice", time.Hour)
	now = now.Add(2 * time.Hour)
	assert.False(t, c.IsOwner("alice", "corr-1"))
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("queue-%d", n%4)
			for j := 0; j < 100; j++ {
				c.Arm(key, time.Millisecond)
				c.Throttled(key)
				c.Delete(key)
			}
		}(i)
	}
	wg.Wait()
}
