package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueOrdering(t *testing.T) {
	t.Parallel()

	q := NewConcurrentQueue[int]()
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 10, q.Len())

	for i := 0; i < 10; i++ {
		v, found := q.Dequeue()
		require.True(t, found)
		require.Equal(t, i, v)
	}

	_, found := q.Dequeue()
	require.False(t, found)
}

func TestQueueNewDataNotification(t *testing.T) {
	t.Parallel()

	q := NewConcurrentQueue[string]()

	select {
	case <-q.NewData():
		t.Fatal("notification fired for empty queue")
	default:
	}

	q.Enqueue("a")

	select {
	case <-q.NewData():
	case <-time.After(time.Second):
		t.Fatal("no notification after enqueue")
	}
}

func TestQueueConcurrentProducersSingleConsumer(t *testing.T) {
	t.Parallel()

	const producers = 8
	const perProducer = 100

	q := NewConcurrentQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(i)
			}
		}()
	}

	consumed := 0
	deadline := time.After(5 * time.Second)
	for consumed < producers*perProducer {
		select {
		case <-q.NewData():
			for {
				_, found := q.Dequeue()
				if !found {
					break
				}
				consumed++
			}
		case <-deadline:
			t.Fatalf("consumed only %d items before timing out", consumed)
		}
	}

	wg.Wait()
	require.Equal(t, 0, q.Len())
}
