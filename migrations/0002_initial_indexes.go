package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// processed webhook events are kept for 30 days, Stripe stops redelivering
// after 3.
const webhookEventsTTLSeconds = 30 * 24 * 60 * 60

func init() {
	AddMigration(2, "initial_indexes", upInitialIndexes, downInitialIndexes)
}

var initialIndexes = map[string][]mongo.IndexModel{
	UsersCollection: {
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "subscription.stripeCustomerId", Value: 1}},
			Options: options.Index().SetName("stripe_customer").
				SetPartialFilterExpression(bson.M{"subscription.stripeCustomerId": bson.M{"$type": "string"}}),
		},
	},
	EmailAccountsCollection: {
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetName("user_email_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_created"),
		},
	},
	EmailStatsCollection: {
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("user_date_unique").SetUnique(true),
		},
	},
	FilterRulesCollection: {
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_created"),
		},
	},
	QuarantineEmailsCollection: {
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "isReviewed", Value: 1},
				{Key: "receivedAt", Value: -1},
			},
			Options: options.Index().SetName("user_pending_received"),
		},
	},
	WebhookEventsCollection: {
		{
			Keys:    bson.D{{Key: "processedAt", Value: 1}},
			Options: options.Index().SetName("processed_at_ttl").SetExpireAfterSeconds(webhookEventsTTLSeconds),
		},
	},
}

func upInitialIndexes(ctx context.Context, database *mongo.Database) error {
	for name, indexes := range initialIndexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

func downInitialIndexes(ctx context.Context, database *mongo.Database) error {
	for name, indexes := range initialIndexes {
		for _, index := range indexes {
			if _, err := database.Collection(name).Indexes().DropOne(ctx, *index.Options.Name); err != nil {
				return fmt.Errorf("failed to drop index %s of %s: %w", *index.Options.Name, name, err)
			}
		}
	}
	return nil
}
