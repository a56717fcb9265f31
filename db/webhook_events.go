package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// WebhookEventProcessed reports if the event was already recorded.
func (ms *MongoStorage) WebhookEventProcessed(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	count, err := ms.webhookEvents.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkWebhookEvent records the event as processed. Recording it twice is not
// an error.
func (ms *MongoStorage) MarkWebhookEvent(ctx context.Context, id, eventType string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := ms.webhookEvents.InsertOne(ctx, WebhookEvent{
		ID:          id,
		Type:        eventType,
		ProcessedAt: time.Now(),
	})
	if err = writeErr(err); err == ErrAlreadyExists {
		return nil
	}
	return err
}
