package spscqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 4; i++ {
		_, ok := q.Enqueue(i)
		require.True(t, ok)
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestEnqueueFullReturnsValue(t *testing.T) {
	q := New[string](2)
	_, _ = q.Enqueue("a")
	_, _ = q.Enqueue("b")
	rejected, ok := q.Enqueue("c")
	require.False(t, ok)
	require.Equal(t, "c", rejected)
}

func TestDequeueEmpty(t *testing.T) {
	q := New[int](2)
	v, ok := q.Dequeue()
	require.False(t, ok)
	require.Equal(t, 0, v)
}

func TestLen(t *testing.T) {
	q := New[int](4)
	require.Equal(t, 0, q.Len())
	q.Enqueue(1)
	q.Enqueue(2)
	require.Equal(t, 2, q.Len())
	q.Dequeue()
	require.Equal(t, 1, q.Len())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New[int](16)
	const n = 10000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for {
				if _, ok := q.Enqueue(i); ok {
					break
				}
			}
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for {
				if v, ok := q.Dequeue(); ok {
					sum += v
					break
				}
			}
		}
	}()

	wg.Wait()
	require.Equal(t, n*(n-1)/2, sum)
}
