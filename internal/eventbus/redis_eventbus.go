package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const consumerGroup = "customer-insights-workers"

// RedisEventBus delivers events over Redis Streams with consumer groups,
// so an event survives a crashed consumer and is redelivered.
type RedisEventBus struct {
	client      *redis.Client
	logger      *zap.Logger
	subscribers map[string][]*RedisSubscription
	mutex       sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// RedisSubscription is one consumer loop on one stream.
type RedisSubscription struct {
	id      string
	topic   string
	handler EventHandler
	cancel  context.CancelFunc
	ctx     context.Context
}

// NewRedisEventBus creates a new RedisEventBus on an already connected
// client. The client is shared with other redis users and is not closed
// here.
func NewRedisEventBus(client *redis.Client, logger *zap.Logger) (*RedisEventBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisEventBus{
		client:      client,
		logger:      logger.Named("eventbus"),
		subscribers: make(map[string][]*RedisSubscription),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Publish appends the event to the topic's stream.
func (r *RedisEventBus) Publish(ctx context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", topic, err)
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{"payload": data},
	}).Err()
}

// Subscribe attaches a consumer-group reader to the topic and starts
// consuming in the background.
func (r *RedisEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	subscription := &RedisSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		ctx:     subCtx,
		cancel:  cancel,
	}

	r.mutex.Lock()
	r.subscribers[topic] = append(r.subscribers[topic], subscription)
	r.mutex.Unlock()

	go r.consumeStream(subscription)

	return subscription, nil
}

func (r *RedisEventBus) consumeStream(sub *RedisSubscription) {
	consumerName := "consumer-" + sub.id

	// Idempotent: BUSYGROUP just means the group already exists.
	_ = r.client.XGroupCreateMkStream(sub.ctx, sub.topic, consumerGroup, "0").Err()

	r.logger.Info("started stream consumer",
		zap.String("topic", sub.topic),
		zap.String("group", consumerGroup))

	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-r.ctx.Done():
			return
		default:
			streams, err := r.client.XReadGroup(sub.ctx, &redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumerName,
				Streams:  []string{sub.topic, ">"},
				Count:    10,
				Block:    2 * time.Second,
			}).Result()

			if err != nil {
				if err != redis.Nil {
					r.logger.Error("failed to read stream", zap.Error(err))
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					if err := r.handleMessage(sub, msg); err != nil {
						// No ack: the message stays in the pending
						// entries list for redelivery.
						r.logger.Error("failed to process message",
							zap.String("msg_id", msg.ID),
							zap.Error(err))
						continue
					}
					r.client.XAck(sub.ctx, sub.topic, consumerGroup, msg.ID)
				}
			}
		}
	}
}

func (r *RedisEventBus) handleMessage(sub *RedisSubscription, msg redis.XMessage) error {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return fmt.Errorf("invalid payload format")
	}

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		event = map[string]interface{}{"data": payload}
	}
	event["_msg_id"] = msg.ID

	return sub.handler(sub.ctx, event)
}

// Unsubscribe stops one consumer loop.
func (r *RedisEventBus) Unsubscribe(subscription Subscription) error {
	return subscription.Unsubscribe()
}

// Close stops every consumer loop. The shared redis client stays open
// for its other users.
func (r *RedisEventBus) Close() error {
	r.cancel()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, subs := range r.subscribers {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	r.subscribers = make(map[string][]*RedisSubscription)
	return nil
}

func (s *RedisSubscription) ID() string    { return s.id }
func (s *RedisSubscription) Topic() string { return s.topic }

// Unsubscribe stops the consumer loop for this subscription.
func (s *RedisSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}
