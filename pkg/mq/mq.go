package mq

// Publisher is the interface for publishing messages to a topic.
// Delivery is best-effort; callers on the request path log and drop errors.
type Publisher interface {
	Publish(topic string, message []byte) error
	Close() error
}
