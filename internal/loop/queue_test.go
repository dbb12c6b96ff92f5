package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string) *pending {
	return &pending{req: Request{ID: id}, done: make(chan Result, 1)}
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(item(id)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, p.req.ID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestRequestQueue_WaitSignals(t *testing.T) {
	q := newRequestQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(item("late"))
	}()

	select {
	case <-q.Wait():
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", p.req.ID)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestRequestQueue_Close(t *testing.T) {
	q := newRequestQueue()
	require.True(t, q.Enqueue(item("kept")))

	q.Close()
	assert.True(t, q.isClosed())
	assert.False(t, q.Enqueue(item("rejected")), "enqueue after close should return false")

	p, ok := q.TryDequeue()
	require.True(t, ok, "close keeps queued requests")
	assert.Equal(t, "kept", p.req.ID)

	select {
	case <-q.Wait():
	default:
		t.Fatal("close should signal waiters")
	}
}

func TestRequestQueue_Drain(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(item("a"))
	q.Enqueue(item("b"))

	rest := q.Drain()
	require.Len(t, rest, 2)
	assert.Equal(t, "b", rest[1].req.ID)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Enqueue(item("c")))
}

func TestRequestQueue_ThreadSafe(t *testing.T) {
	q := newRequestQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(item("x"))
			}
		}()
	}

	received := 0
	deadline := time.After(5 * time.Second)
	for received < producers*perProducer {
		if _, ok := q.TryDequeue(); ok {
			received++
			continue
		}
		select {
		case <-q.Wait():
		case <-deadline:
			t.Fatalf("consumer timeout: received %d requests", received)
		}
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, received)
}
