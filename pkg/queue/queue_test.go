package queue_test

import (
	"sync"
	"testing"

	"github.com/evgeniums/hatn-sub006/pkg/queue"
	"github.com/stretchr/testify/require"
)

func TestMutexFIFOOrder(t *testing.T) {
	q := queue.NewMutex[int](true)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	require.Equal(t, 5, q.Size())
	for i := 0; i < 5; i++ {
		v, ok := q.PopItem()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.True(t, q.IsEmpty())
}

func TestMPSCConcurrentProducers(t *testing.T) {
	q := queue.NewMPSC[int](16, true)
	var wg sync.WaitGroup
	const producers, perProducer = 8, 50
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]bool)
	for len(seen) < producers*perProducer {
		v, ok := q.PopItem()
		if !ok {
			continue
		}
		seen[v] = true
	}
	wg.Wait()
	require.Len(t, seen, producers*perProducer)
	require.True(t, q.IsEmpty())
}

func TestSimpleSingleConsumer(t *testing.T) {
	q := queue.NewSimple[string]()
	q.Push("a")
	q.Push("b")
	v, ok := q.PopItem()
	require.True(t, ok)
	require.Equal(t, "a", v)
	q.Clear()
	require.True(t, q.IsEmpty())
}
