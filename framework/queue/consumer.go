package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Handler processes one message. Returning nil acknowledges the message;
// an error releases it back to the queue and the consumer waits its wait
// time before polling again.
type Handler func(ctx context.Context, msg *Message) error

type consumeOptions struct {
	waitTime     time.Duration
	maxIdlePolls int
	logger       *zap.Logger
}

// ConsumeOption configures Consume.
type ConsumeOption func(*consumeOptions)

// WithWaitTime sets the pause after a poll that found nothing. Default 1s.
func WithWaitTime(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) { o.waitTime = d }
}

// WithMaxIdlePolls stops the consumer after n consecutive empty polls.
// Zero, the default, polls until the context is cancelled.
func WithMaxIdlePolls(n int) ConsumeOption {
	return func(o *consumeOptions) { o.maxIdlePolls = n }
}

// WithLogger sets the consumer's logger.
func WithLogger(logger *zap.Logger) ConsumeOption {
	return func(o *consumeOptions) { o.logger = logger }
}

// Consume pops messages from the named queue and passes them to handler
// until ctx is cancelled or the idle limit is reached. It returns the number
// of messages handled successfully. Reaching the idle limit is not an error.
func Consume(ctx context.Context, q Queue, queue string, handler Handler, opts ...ConsumeOption) (int, error) {
	o := consumeOptions{waitTime: time.Second, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("queue", queue))

	processed, idle := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		msg, err := q.Pop(ctx, queue)
		if err != nil {
			if !errors.Is(err, ErrEmpty) {
				logger.Warn("queue pop failed", zap.Error(err))
			}
			idle++
			if o.maxIdlePolls > 0 && idle >= o.maxIdlePolls {
				logger.Debug("queue consumer idle, stopping", zap.Int("processed", processed))
				return processed, nil
			}
			if err := wait(ctx, o.waitTime); err != nil {
				return processed, err
			}
			continue
		}
		idle = 0

		if err := handler(ctx, msg); err != nil {
			logger.Error("queue message failed", zap.Int64("id", msg.ID), zap.Error(err))
			if rerr := q.Release(context.WithoutCancel(ctx), msg); rerr != nil {
				logger.Error("queue release failed", zap.Int64("id", msg.ID), zap.Error(rerr))
			}
			// The released message is next in line; pause before claiming it again.
			if err := wait(ctx, o.waitTime); err != nil {
				return processed, err
			}
			continue
		}
		if err := q.Ack(context.WithoutCancel(ctx), msg); err != nil {
			logger.Error("queue ack failed", zap.Int64("id", msg.ID), zap.Error(err))
			continue
		}
		processed++
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
