package migrations

import (
	"context"
	"fmt"
	"slices"

	"github.com/mailclean/saas-backend/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(1, "initial_collections", upInitialCollections, downInitialCollections)
}

var collectionsToCreate = []string{
	UsersCollection,
	EmailAccountsCollection,
	EmailStatsCollection,
	FilterRulesCollection,
	QuarantineEmailsCollection,
	WebhookEventsCollection,
	MigrationsCollection,
}

var collectionsValidators = map[string]bson.M{
	UsersCollection:            usersCollectionValidator,
	EmailAccountsCollection:    emailAccountsCollectionValidator,
	EmailStatsCollection:       emailStatsCollectionValidator,
	FilterRulesCollection:      filterRulesCollectionValidator,
	QuarantineEmailsCollection: quarantineEmailsCollectionValidator,
}

var usersCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "email", "plan"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":    "string",
				"description": "the auth provider user id must be a string and is required",
			},
			"email": bson.M{
				"bsonType":    "string",
				"description": "must be an email and is required",
				"pattern":     internal.EmailRegexTemplate,
			},
			"plan": bson.M{
				"enum":        []string{"free", "pro", "enterprise"},
				"description": "must be one of the known plans and is required",
			},
		},
	},
}

var emailAccountsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "email", "provider"},
		"properties": bson.M{
			"userId": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
			"email": bson.M{
				"bsonType":    "string",
				"description": "must be an email and is required",
				"pattern":     internal.EmailRegexTemplate,
			},
			"provider": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
		},
	},
}

var emailStatsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "date"},
		"properties": bson.M{
			"userId": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
			"date": bson.M{
				"bsonType":    "string",
				"description": "must be a YYYY-MM-DD day and is required",
				"pattern":     `^\d{4}-\d{2}-\d{2}$`,
			},
		},
	},
}

var filterRulesCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "type", "emailPattern"},
		"properties": bson.M{
			"type": bson.M{
				"enum":        []string{"blocked", "allowed"},
				"description": "must be blocked or allowed and is required",
			},
			"emailPattern": bson.M{
				"bsonType":    "string",
				"description": "must be a non empty string and is required",
				"minLength":   1,
			},
		},
	},
}

var quarantineEmailsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "fromEmail", "category"},
		"properties": bson.M{
			"category": bson.M{
				"enum":        []string{"spam", "phishing"},
				"description": "must be spam or phishing and is required",
			},
			"confidence": bson.M{
				"bsonType":    "number",
				"description": "must be a number between 0 and 100",
				"minimum":     0,
				"maximum":     100,
			},
		},
	},
}

func upInitialCollections(ctx context.Context, database *mongo.Database) error {
	currentCollections, err := database.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to get current collections: %w", err)
	}
	for _, name := range collectionsToCreate {
		validator, hasValidator := collectionsValidators[name]
		if slices.Contains(currentCollections, name) {
			if !hasValidator {
				continue
			}
			if err := database.RunCommand(ctx, bson.D{
				{Key: "collMod", Value: name},
				{Key: "validator", Value: validator},
			}).Err(); err != nil {
				return fmt.Errorf("failed to update validator of %s: %w", name, err)
			}
			continue
		}
		opts := options.CreateCollection()
		if hasValidator {
			opts = opts.SetValidator(validator).SetValidationLevel("strict").SetValidationAction("error")
		}
		if err := database.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

func downInitialCollections(context.Context, *mongo.Database) error {
	// Dropping every collection is too destructive and the up func is
	// idempotent anyway, so there is nothing to undo here.
	return nil
}
