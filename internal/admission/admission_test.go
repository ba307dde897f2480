package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityBound(t *testing.T) {
	c := New(2)
	ctx := context.Background()

	require.True(t, c.TryAdmit())
	require.NoError(t, c.Acquire(ctx))
	require.True(t, c.TryAdmit())
	require.NoError(t, c.Acquire(ctx))

	// Budget exhausted: the pre-check must fail without consuming anything.
	assert.False(t, c.TryAdmit())
	assert.Equal(t, 2, c.InUse())

	c.Release()
	assert.True(t, c.TryAdmit())
	assert.Equal(t, 1, c.InUse())
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	c := New(1)
	require.NoError(t, c.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		_ = c.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire succeeded with no free slot")
	case <-time.After(50 * time.Millisecond):
	}

	c.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe the released slot")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	c := New(1)
	require.NoError(t, c.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	c := New(1)
	c.Release()
	assert.Equal(t, 0, c.InUse())
}

func TestIdentityExclusivity(t *testing.T) {
	c := New(4)

	require.True(t, c.MarkActive("alice"))
	assert.True(t, c.IsActive("alice"))
	assert.False(t, c.MarkActive("alice"), "second concurrent session must be refused")

	assert.True(t, c.MarkActive("bob"))

	c.MarkInactive("alice")
	assert.False(t, c.IsActive("alice"))
	assert.True(t, c.MarkActive("alice"), "identity admitted again after teardown")
}

func TestMarkActiveIsAtomicUnderContention(t *testing.T) {
	c := New(1)

	var wg sync.WaitGroup
	wins := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- c.MarkActive("alice")
		}()
	}
	wg.Wait()
	close(wins)

	granted := 0
	for ok := range wins {
		if ok {
			granted++
		}
	}
	assert.Equal(t, 1, granted)
}
