package orchestrator

import (
	"context"
	"sync"
)

// mailbox is an unbounded multi-producer single-consumer queue. put never
// blocks; queue depth is deliberately unbounded, trading backpressure for
// the guarantee that trigger producers always return immediately.
type mailbox struct {
	mu     sync.Mutex
	items  []Trigger
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) put(t Trigger) {
	m.mu.Lock()
	m.items = append(m.items, t)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// next blocks until an item is available or ctx is done. Items come out in
// FIFO order.
func (m *mailbox) next(ctx context.Context) (Trigger, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items = m.items[1:]
			m.mu.Unlock()
			return item, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return Trigger{}, false
		}
	}
}

func (m *mailbox) depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
