package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v74"
)

// EventPublisher queues verified webhook events for asynchronous
// reconciliation. The HTTP intake acknowledges the sender as soon as the
// event is on the topic.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishWebhookEvent enqueues an already signature-verified Stripe event.
// Events are keyed by customer so deliveries for one customer stay ordered
// within a partition.
func (ep *EventPublisher) PublishWebhookEvent(ctx context.Context, event stripe.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	key := event.ID
	if event.Data != nil && event.Data.Object != nil {
		if customerID, ok := event.Data.Object["customer"].(string); ok && customerID != "" {
			key = customerID
		}
	}

	return ep.producer.Publish(ctx, key, payload)
}

// DecodeWebhookEvent is the consumer-side inverse of PublishWebhookEvent.
func DecodeWebhookEvent(value []byte) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}
	return event, nil
}
