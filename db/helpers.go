package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mailclean/saas-backend/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// initCollections sets the collection handlers. The collections themselves,
// their validators and indexes are created by the migrations.
func (ms *MongoStorage) initCollections() {
	database := ms.DBClient.Database(ms.database)
	ms.users = database.Collection(migrations.UsersCollection)
	ms.emailAccounts = database.Collection(migrations.EmailAccountsCollection)
	ms.emailStats = database.Collection(migrations.EmailStatsCollection)
	ms.filterRules = database.Collection(migrations.FilterRulesCollection)
	ms.quarantineEmails = database.Collection(migrations.QuarantineEmailsCollection)
	ms.webhookEvents = database.Collection(migrations.WebhookEventsCollection)
	ms.migrations = database.Collection(migrations.MigrationsCollection)
}

// findAll runs the query on the collection and decodes every resulting
// document. It never returns a nil slice so empty lists are encoded as [].
func findAll[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "collection", col.Name(), "error", err)
		}
	}()
	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", col.Name(), err)
	}
	return items, nil
}

// userScoped returns the filter that matches the document id only when it
// belongs to the user.
func userScoped(userID, id string) bson.M {
	return bson.M{"_id": id, "userId": userID}
}

// isValidationError reports if the server refused the write because of a
// collection validator.
func isValidationError(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 121 {
			return true
		}
	}
	return false
}

// writeErr maps the driver write errors to the package errors.
func writeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return ErrAlreadyExists
	case isValidationError(err):
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	default:
		return err
	}
}

// dynamicUpdateDocument creates a BSON update document from a struct, including only non-zero fields.
// It uses reflection to iterate over the struct fields and create the update document.
// The struct fields must have a bson tag to be included in the update document.
// The _id field is skipped.
func dynamicUpdateDocument(item any, alwaysUpdateTags []string) (bson.M, error) {
	val := reflect.ValueOf(item)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if !val.IsValid() || val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input must be a valid struct")
	}
	update := bson.M{}
	typ := val.Type()
	alwaysUpdateMap := make(map[string]bool, len(alwaysUpdateTags))
	for _, tag := range alwaysUpdateTags {
		alwaysUpdateMap[tag] = true
	}
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanInterface() {
			continue
		}
		tag, _, _ := strings.Cut(typ.Field(i).Tag.Get("bson"), ",")
		if tag == "" || tag == "-" || tag == "_id" {
			continue
		}
		if alwaysUpdateMap[tag] || !field.IsZero() {
			update[tag] = field.Interface()
		}
	}
	return bson.M{"$set": update}, nil
}
