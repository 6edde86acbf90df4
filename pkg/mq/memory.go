package mq

import "sync"

// InMemoryQueue is an in-process Publisher for tests and development.
type InMemoryQueue struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

var _ Publisher = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates an in-memory queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		messages: make(map[string][][]byte),
	}
}

// Publish records the message under its topic
func (q *InMemoryQueue) Publish(topic string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages[topic] = append(q.messages[topic], message)
	return nil
}

// Close is a no-op
func (q *InMemoryQueue) Close() error {
	return nil
}

// Messages returns all messages published to a topic, for assertions.
func (q *InMemoryQueue) Messages(topic string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.messages[topic]
}
