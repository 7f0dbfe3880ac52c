package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/pkg/circuitbreaker"
	"meetsignal/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the slice of the redis client the bus needs. *redis.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Config struct {
	Channel        string
	QueueSize      int
	PublishTimeout time.Duration
	InstanceID     string
	Retry          retry.Config
	Breaker        circuitbreaker.Config
}

func DefaultConfig() Config {
	return Config{
		Channel:        "meetsignal:events",
		QueueSize:      1024,
		PublishTimeout: 2 * time.Second,
		Retry:          retry.DefaultConfig(),
		Breaker:        circuitbreaker.DefaultConfig(),
	}
}

// Stats counts what happened to events handed to the bus.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// RedisEventBus publishes lifecycle events as JSON on a redis pub/sub channel.
// Publish only enqueues; a single worker goroutine talks to redis.
type RedisEventBus struct {
	client  Publisher
	config  Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.LifecycleEvent
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewRedisEventBus(client Publisher, config Config, logger *zap.SugaredLogger) *RedisEventBus {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultConfig().PublishTimeout
	}

	bus := &RedisEventBus{
		client:  client,
		config:  config,
		breaker: circuitbreaker.New(config.Breaker),
		logger:  logger,
		queue:   make(chan domain.LifecycleEvent, config.QueueSize),
		done:    make(chan struct{}),
	}
	bus.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("event bus circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	go bus.run()
	return bus
}

// Publish stamps the event with this instance and enqueues it. A full queue drops the event.
func (b *RedisEventBus) Publish(_ context.Context, event domain.LifecycleEvent) {
	if event.InstanceID == "" {
		event.InstanceID = b.config.InstanceID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
		b.logger.Warnw("event queue full, dropping lifecycle event",
			"type", event.Type,
			"meeting_id", event.MeetingID,
		)
	}
}

func (b *RedisEventBus) run() {
	defer close(b.done)
	for event := range b.queue {
		if err := b.send(event); err != nil {
			b.failed.Add(1)
			if errors.Is(err, circuitbreaker.ErrOpen) {
				b.logger.Debugw("event bus open, lifecycle event not published",
					"type", event.Type,
					"meeting_id", event.MeetingID,
				)
				continue
			}
			b.logger.Errorw("failed to publish lifecycle event",
				"type", event.Type,
				"meeting_id", event.MeetingID,
				"error", err,
			)
			continue
		}
		b.published.Add(1)
	}
}

func (b *RedisEventBus) send(event domain.LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.PublishTimeout)
	defer cancel()

	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, b.config.Retry, func(ctx context.Context) error {
			return b.client.Publish(ctx, b.config.Channel, data).Err()
		})
	})
}

func (b *RedisEventBus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
		Failed:    b.failed.Load(),
	}
}

// BreakerState reports the redis circuit breaker state for health output.
func (b *RedisEventBus) BreakerState() circuitbreaker.State {
	return b.breaker.GetState()
}

// Close stops accepting events and waits for the queue to drain.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	return nil
}
