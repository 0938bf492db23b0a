package session

import (
	"context"
	"sync"
)

// fifo admits one holder at a time and hands the slot to waiters in arrival order
type fifo struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

func (q *fifo) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	q.waiters = append(q.waiters, ticket)
	q.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, w := range q.waiters {
			if w == ticket {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		q.mu.Unlock()
		// the slot was handed over while we were giving up; pass it on
		q.release()
		return ctx.Err()
	}
}

func (q *fifo) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		q.busy = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}
