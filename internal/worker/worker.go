package worker

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// WebhookWorker drains the verified-event topic and reconciles each event
// into durable order and subscription state.
type WebhookWorker struct {
	consumer   *broker.Consumer
	reconciler *service.Reconciler
	logger     *zap.Logger
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *WebhookWorker {
	return &WebhookWorker{
		consumer:   consumer,
		reconciler: reconciler,
		logger:     util.GetLogger(),
	}
}

// Start starts the worker loop. It blocks until the context is cancelled.
// A failed event is logged and left in its terminal state in the webhook log;
// it is never retried, matching the at-most-once processing contract.
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting webhook worker")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		event, err := broker.DecodeWebhookEvent(msg.Value)
		if err != nil {
			w.logger.Error("Discarding undecodable webhook message",
				zap.String("key", string(msg.Key)),
				zap.Error(err))
			return nil
		}

		if err := w.reconciler.HandleEvent(ctx, event); err != nil {
			w.logger.Error("Webhook event processing failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
		return nil
	})
}

// Stop stops the worker
func (w *WebhookWorker) Stop() error {
	w.logger.Info("Stopping webhook worker")
	return w.consumer.Close()
}
