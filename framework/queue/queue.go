package queue

import (
	"context"
	"errors"
)

var (
	// ErrEmpty is returned by Pop when no message is available.
	ErrEmpty = errors.New("queue is empty")

	// ErrNotConfigured is returned by queues used before Configure.
	ErrNotConfigured = errors.New("queue not configured")

	// ErrForeignMessage is returned when a message is acknowledged or
	// released on a queue that did not pop it.
	ErrForeignMessage = errors.New("message was not popped from this queue")
)

// Message is a claimed queue item. It stays invisible to other consumers
// until it is acknowledged or released.
type Message struct {
	ID    int64
	Queue string
	Data  []byte

	origin Queue
	shard  Queue
	inner  *Message
}

// Queue is the interface of every queue service.
type Queue interface {
	// Push appends data to the named queue.
	Push(ctx context.Context, queue string, data []byte) error

	// Pop claims the oldest available message, or returns ErrEmpty.
	Pop(ctx context.Context, queue string) (*Message, error)

	// Ack removes a claimed message.
	Ack(ctx context.Context, msg *Message) error

	// Release returns a claimed message to the queue.
	Release(ctx context.Context, msg *Message) error
}
