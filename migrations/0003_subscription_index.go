package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const stripeSubscriptionIndex = "stripe_subscription"

func init() {
	AddMigration(3, "stripe_subscription_index", upSubscriptionIndex, downSubscriptionIndex)
}

func upSubscriptionIndex(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "subscription.stripeSubscriptionId", Value: 1}},
		Options: options.Index().SetName(stripeSubscriptionIndex).
			SetPartialFilterExpression(bson.M{"subscription.stripeSubscriptionId": bson.M{"$type": "string"}}),
	})
	if err != nil {
		return fmt.Errorf("failed to create index on stripe subscription for users: %w", err)
	}
	return nil
}

func downSubscriptionIndex(ctx context.Context, database *mongo.Database) error {
	if _, err := database.Collection(UsersCollection).Indexes().DropOne(ctx, stripeSubscriptionIndex); err != nil {
		return fmt.Errorf("failed to drop index %s: %w", stripeSubscriptionIndex, err)
	}
	return nil
}
