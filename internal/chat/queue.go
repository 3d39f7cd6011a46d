package chat

import (
	"context"
	"sync"
)

// turnQueue orders work per key. Each enqueued turn runs only after the turn
// enqueued before it for the same key has finished; different keys do not
// wait for each other.
type turnQueue struct {
	mu   sync.Mutex
	tail map[string]chan struct{}
}

func newTurnQueue() *turnQueue {
	return &turnQueue{tail: make(map[string]chan struct{})}
}

// turn is one reserved slot. Call wait, then finish when the work is done
// unless wait returned an error.
type turn struct {
	q    *turnQueue
	key  string
	prev chan struct{} // nil when the queue was empty
	done chan struct{}
}

func (q *turnQueue) enqueue(key string) *turn {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := &turn{q: q, key: key, prev: q.tail[key], done: make(chan struct{})}
	q.tail[key] = t.done
	return t
}

// wait blocks until every earlier turn for the key has finished. When ctx
// ends first the turn is released in the background once its predecessor
// finishes, so later turns still keep their order.
func (t *turn) wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		go func() {
			<-t.prev
			t.finish()
		}()
		return ctx.Err()
	}
}

func (t *turn) finish() {
	t.q.mu.Lock()
	if t.q.tail[t.key] == t.done {
		delete(t.q.tail, t.key)
	}
	t.q.mu.Unlock()
	close(t.done)
}

// pending reports how many keys have queued or running turns.
func (q *turnQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tail)
}
