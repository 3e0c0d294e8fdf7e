package eventbus

import "context"

// EventBus is the asynchronous channel order events arrive on.
type EventBus interface {
	Publish(ctx context.Context, topic string, event interface{}) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)
	Unsubscribe(subscription Subscription) error
	Close() error
}

// EventHandler processes one incoming event. Returning an error leaves
// the message pending for redelivery.
type EventHandler func(ctx context.Context, event map[string]interface{}) error

// Subscription represents an active consumer on one topic.
type Subscription interface {
	ID() string
	Topic() string
	Unsubscribe() error
}
