package serverdb

import (
	"context"
	"sync"
)

// Hub tracks the change-log head and wakes long-polls when it advances.
type Hub struct {
	mu     sync.Mutex
	head   int64
	wake   chan struct{}
	closed bool
}

// NewHub returns a hub at head 0.
func NewHub() *Hub {
	return &Hub{wake: make(chan struct{})}
}

// Head returns the last published sequence.
func (h *Hub) Head() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.head
}

// Publish records a new head and wakes every waiter. Heads never move
// backwards.
func (h *Hub) Publish(seq int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || seq <= h.head {
		return
	}
	h.head = seq
	close(h.wake)
	h.wake = make(chan struct{})
}

// Wait blocks until the head passes after, the hub closes, or ctx ends.
// It returns the head at that moment.
func (h *Hub) Wait(ctx context.Context, after int64) int64 {
	for {
		h.mu.Lock()
		head, wake, closed := h.head, h.wake, h.closed
		h.mu.Unlock()
		if head > after || closed {
			return head
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return head
		}
	}
}

// Close releases every waiter.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.wake)
	}
}
