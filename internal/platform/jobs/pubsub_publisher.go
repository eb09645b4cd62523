package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/recophone/api/internal/services"
)

// PubSubEventPublisher publishes domain events (quote.finalized, checkout.completed) to a topic.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher wraps topic.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

type envelope struct {
	Type       string         `json:"type"`
	Key        string         `json:"key,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// PublishEvent sends the event and waits for the server id. Messages with the same key share an
// ordering key, so events of one quote or checkout session are delivered in order when the topic enables it.
func (p *PubSubEventPublisher) PublishEvent(ctx context.Context, event services.EventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return "", errors.New("pubsub event publisher: event type is required")
	}

	data, err := p.marshal(envelope{
		Type:       eventType,
		Key:        event.Key,
		OccurredAt: event.OccurredAt.UTC(),
		Data:       event.Data,
	})
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", eventType, err)
	}

	attrs := map[string]string{"type": eventType}
	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if key := strings.TrimSpace(event.Key); key != "" {
		attrs["key"] = key
		if p.topic.EnableMessageOrdering {
			msg.OrderingKey = key
		}
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish event %s: %w", eventType, err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
