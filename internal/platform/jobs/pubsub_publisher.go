// Package jobs hands work to out-of-process workers over Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/storefront/internal/domain"
)

// NotificationPublisher publishes notification tasks for an external mail worker.
type NotificationPublisher struct {
	topic *pubsub.Topic
}

// NewNotificationPublisher constructs a Pub/Sub backed notification sender.
func NewNotificationPublisher(topic *pubsub.Topic) (*NotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("notification publisher: topic is required")
	}
	return &NotificationPublisher{topic: topic}, nil
}

// Send publishes the task and waits for the server to acknowledge it.
func (p *NotificationPublisher) Send(ctx context.Context, task domain.NotificationTask) error {
	if p == nil || p.topic == nil {
		return errors.New("notification publisher: not initialised")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := map[string]string{
		"kind":    string(task.Kind),
		"attempt": strconv.Itoa(task.Attempt),
	}
	if task.OrderID != "" {
		attrs["orderId"] = task.OrderID
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Stop flushes pending publishes.
func (p *NotificationPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
