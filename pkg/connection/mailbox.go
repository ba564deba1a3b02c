package connection

import "sync"

// mailbox is an unbounded FIFO. put never blocks, so transport callbacks and
// timers can always hand events to the loop without waiting on it.
type mailbox[T any] struct {
	mu      sync.Mutex
	items   []T
	closing bool

	signal    chan struct{}
	out       chan T
	aborted   chan struct{}
	abortOnce sync.Once
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		signal:  make(chan struct{}, 1),
		out:     make(chan T),
		aborted: make(chan struct{}),
	}
	go m.pump()
	return m
}

func (m *mailbox[T]) put(v T) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, v)
	m.mu.Unlock()
	m.notify()
}

func (m *mailbox[T]) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			closing := m.closing
			m.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-m.signal:
				continue
			case <-m.aborted:
				return
			}
		}
		v := m.items[0]
		var zero T
		m.items[0] = zero
		m.items = m.items[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.aborted:
			return
		}
	}
}

// close rejects further puts, delivers what is queued, then closes the output.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()
	m.notify()
}

// abort closes the output and discards whatever is queued.
func (m *mailbox[T]) abort() {
	m.mu.Lock()
	m.closing = true
	m.items = nil
	m.mu.Unlock()
	m.abortOnce.Do(func() { close(m.aborted) })
}
