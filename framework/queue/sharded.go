package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/validation"
)

// Sharded spreads a queue over other queue services. Pushes go to the
// shards round-robin and each Pop polls every shard once, starting from the
// next shard in turn.
//
//	[jobs]
//	service_provider = "queue.sharded"
//	shards = ["jobs_a", "jobs_b"]
type Sharded struct {
	manager *container.Manager
	shards  []Queue
	names   []string
	next    atomic.Uint64
	logger  *zap.Logger
}

// NewSharded creates an unconfigured sharded queue.
func NewSharded() *Sharded {
	return &Sharded{logger: zap.NewNop()}
}

// SetServiceManager implements container.ManagerAware.
func (q *Sharded) SetServiceManager(m *container.Manager) {
	q.manager = m
	q.logger = m.Logger().Named("queue.sharded")
}

// ConfigRules implements container.ConfigRules.
func (q *Sharded) ConfigRules() validation.Rules {
	return validation.Rules{"shards": "required"}
}

// Configure implements container.Service.
func (q *Sharded) Configure(cfg *container.ServiceConfig) error {
	if q.manager == nil {
		return ErrNotConfigured
	}
	names := cfg.List("shards", nil)
	if len(names) == 0 {
		return errors.New("queue: sharded queue needs at least one shard")
	}
	if slices.Contains(names, cfg.Name()) {
		return fmt.Errorf("queue: %s lists itself as a shard", cfg.Name())
	}

	shards := make([]Queue, 0, len(names))
	for _, name := range names {
		shard, err := container.Resolve[Queue](q.manager, name)
		if err != nil {
			return fmt.Errorf("queue: shard %q: %w", name, err)
		}
		shards = append(shards, shard)
	}
	q.shards, q.names = shards, names
	q.logger.Debug("sharded queue configured", zap.Strings("shards", names))
	return nil
}

// Shards returns the names of the shard services.
func (q *Sharded) Shards() []string { return slices.Clone(q.names) }

func (q *Sharded) start() int {
	return int((q.next.Add(1) - 1) % uint64(len(q.shards)))
}

// Push implements Queue.
func (q *Sharded) Push(ctx context.Context, queue string, data []byte) error {
	if len(q.shards) == 0 {
		return ErrNotConfigured
	}
	return q.shards[q.start()].Push(ctx, queue, data)
}

// Pop implements Queue. A failing shard is logged and skipped; the error is
// returned only if no shard produced a message.
func (q *Sharded) Pop(ctx context.Context, queue string) (*Message, error) {
	if len(q.shards) == 0 {
		return nil, ErrNotConfigured
	}

	var errs []error
	first := q.start()
	for i := range q.shards {
		idx := (first + i) % len(q.shards)
		msg, err := q.shards[idx].Pop(ctx, queue)
		switch {
		case err == nil:
			return &Message{ID: msg.ID, Queue: msg.Queue, Data: msg.Data, origin: q, shard: q.shards[idx], inner: msg}, nil
		case errors.Is(err, ErrEmpty):
		default:
			q.logger.Warn("queue shard pop failed", zap.String("shard", q.names[idx]), zap.Error(err))
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrEmpty
}

// Ack implements Queue.
func (q *Sharded) Ack(ctx context.Context, msg *Message) error {
	if msg == nil || msg.origin != Queue(q) || msg.shard == nil {
		return ErrForeignMessage
	}
	return msg.shard.Ack(ctx, msg.inner)
}

// Release implements Queue.
func (q *Sharded) Release(ctx context.Context, msg *Message) error {
	if msg == nil || msg.origin != Queue(q) || msg.shard == nil {
		return ErrForeignMessage
	}
	return msg.shard.Release(ctx, msg.inner)
}
