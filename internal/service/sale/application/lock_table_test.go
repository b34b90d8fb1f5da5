package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableSerializesSameOrder(t *testing.T) {
	table := NewLockTable()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := table.Acquire(context.Background(), 1)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInside)
	assert.Equal(t, 0, table.Len(), "entries must be evicted once unreferenced")
}

func TestLockTableIndependentOrders(t *testing.T) {
	table := NewLockTable()
	r1, err := table.Acquire(context.Background(), 1)
	require.NoError(t, err)
	r2, err := table.Acquire(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	r1()
	r2()
	assert.Equal(t, 0, table.Len())
}

func TestLockTableAcquireHonoursContext(t *testing.T) {
	table := NewLockTable()
	release, err := table.Acquire(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = table.Acquire(ctx, 7)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, table.Len())

	release()
	release() // 重复释放无副作用
	assert.Equal(t, 0, table.Len())

	again, err := table.Acquire(context.Background(), 7)
	require.NoError(t, err)
	again()
}
