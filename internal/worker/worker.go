package worker

import (
	"context"
	"encoding/json"
	"log"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/segmentio/kafka-go"
)

// PaymentNotificationWorker applies settlement notifications from the payment
// provider. It is the backend-side mutation the polling engine observes: once
// a notification lands, the payment and its order flip to PAID.
type PaymentNotificationWorker struct {
	consumer *broker.Consumer
	store    *store.Store
}

// NewPaymentNotificationWorker creates a new notification worker
func NewPaymentNotificationWorker(consumer *broker.Consumer, store *store.Store) *PaymentNotificationWorker {
	return &PaymentNotificationWorker{
		consumer: consumer,
		store:    store,
	}
}

// Start starts the worker
func (w *PaymentNotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting payment notification worker...")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			log.Printf("Failed to unmarshal event: %v", err)
			return err
		}

		if baseEvent.EventType != models.EventTypePaymentNotified {
			return nil
		}

		var event models.PaymentNotifiedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("Failed to unmarshal PaymentNotified event: %v", err)
			return err
		}

		orderID, err := w.store.MarkPaymentPaid(ctx, event.Reference)
		if err != nil {
			// Duplicate notifications land here once the first one has
			// flipped the payment.
			log.Printf("Skipping notification for reference %s: %v", event.Reference, err)
			return nil
		}

		log.Printf("Payment settled: order=%d reference=%s", orderID, event.Reference)
		return nil
	})
}

// Stop stops the worker
func (w *PaymentNotificationWorker) Stop() error {
	log.Println("Stopping payment notification worker...")
	return w.consumer.Close()
}
