package queue_test

import (
	"context"
	"sync"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/queue"
)

// memQueue is an in-memory queue.Queue used as a shard and consumer source.
type memQueue struct {
	mu       sync.Mutex
	nextID   int64
	items    map[string][]*queue.Message
	claimed  map[int64]*queue.Message
	acked    []int64
	released []int64
	popErr   error
}

func newMemQueue() *memQueue {
	return &memQueue{items: map[string][]*queue.Message{}, claimed: map[int64]*queue.Message{}}
}

func (q *memQueue) Configure(*container.ServiceConfig) error { return nil }

func (q *memQueue) Push(_ context.Context, name string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.items[name] = append(q.items[name], &queue.Message{ID: q.nextID, Queue: name, Data: data})
	return nil
}

func (q *memQueue) Pop(_ context.Context, name string) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.popErr != nil {
		return nil, q.popErr
	}
	if len(q.items[name]) == 0 {
		return nil, queue.ErrEmpty
	}
	msg := q.items[name][0]
	q.items[name] = q.items[name][1:]
	q.claimed[msg.ID] = msg
	return msg, nil
}

func (q *memQueue) Ack(_ context.Context, msg *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, msg.ID)
	q.acked = append(q.acked, msg.ID)
	return nil
}

func (q *memQueue) Release(_ context.Context, msg *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, msg.ID)
	q.released = append(q.released, msg.ID)
	q.items[msg.Queue] = append(q.items[msg.Queue], msg)
	return nil
}

func (q *memQueue) len(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[name])
}
