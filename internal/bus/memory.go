package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Memory is the in-process Bus transport. Each topic owns one dispatcher
// goroutine draining an unbounded FIFO, so publishers never block and
// per-topic order is preserved.
type Memory struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]*memoryTopic
	closed bool

	wg sync.WaitGroup
}

type memoryTopic struct {
	name string

	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	handlers []Handler
	closed   bool
}

// NewMemory creates a memory bus. Call Close to stop its dispatchers.
func NewMemory() *Memory {
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]*memoryTopic),
	}
}

// topic returns the dispatcher state for a topic, creating it (and its
// dispatcher goroutine) on first use. Caller must hold m.mu.
func (m *Memory) topic(name string) *memoryTopic {
	t, ok := m.topics[name]
	if !ok {
		t = &memoryTopic{name: name}
		t.cond = sync.NewCond(&t.mu)
		m.topics[name] = t

		m.wg.Add(1)
		go m.dispatch(t)
	}
	return t
}

// Publish appends the event to the topic queue and returns immediately.
func (m *Memory) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	t := m.topic(topic)
	m.mu.Unlock()

	t.mu.Lock()
	t.queue = append(t.queue, data)
	t.cond.Signal()
	t.mu.Unlock()

	return nil
}

// Subscribe registers a handler for subsequent events on the topic.
func (m *Memory) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("bus is closed")
	}

	t := m.topic(topic)
	t.mu.Lock()
	t.handlers = append(t.handlers, handler)
	t.mu.Unlock()

	return nil
}

// Close stops all dispatchers. Events still queued are dropped; handlers
// already running see a cancelled context and are waited for.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	topics := make([]*memoryTopic, 0, len(m.topics))
	for _, t := range m.topics {
		topics = append(topics, t)
	}
	m.mu.Unlock()

	m.cancel()
	for _, t := range topics {
		t.mu.Lock()
		t.closed = true
		t.cond.Signal()
		t.mu.Unlock()
	}

	m.wg.Wait()
	return nil
}

func (m *Memory) dispatch(t *memoryTopic) {
	defer m.wg.Done()

	for {
		t.mu.Lock()
		for len(t.queue) == 0 && !t.closed {
			t.cond.Wait()
		}
		if t.closed {
			t.mu.Unlock()
			return
		}

		payload := t.queue[0]
		t.queue = t.queue[1:]
		handlers := append([]Handler(nil), t.handlers...)
		t.mu.Unlock()

		// Sequential invocation keeps publish order observable per topic
		for _, handler := range handlers {
			if err := handler(m.ctx, payload); err != nil {
				log.Printf("[Bus] handler error on topic %q: %v", t.name, err)
			}
		}
	}
}
