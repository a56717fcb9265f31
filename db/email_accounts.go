package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mailclean/saas-backend/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EmailAccounts returns the mailboxes connected by the user, newest first.
func (ms *MongoStorage) EmailAccounts(ctx context.Context, userID string) ([]EmailAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findAll[EmailAccount](ctx, ms.emailAccounts, bson.M{"userId": userID}, opts)
}

// CountEmailAccounts returns how many mailboxes the user has connected.
func (ms *MongoStorage) CountEmailAccounts(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return ms.emailAccounts.CountDocuments(ctx, bson.M{"userId": userID})
}

// AddEmailAccount stores a new active mailbox for the user. The ID and the
// creation date are assigned here. Adding the same address twice returns
// ErrAlreadyExists.
func (ms *MongoStorage) AddEmailAccount(ctx context.Context, account *EmailAccount) error {
	if account == nil || account.UserID == "" || account.Provider == "" {
		return ErrInvalidData
	}
	account.Email = internal.NormalizeEmail(account.Email)
	if !internal.ValidEmail(account.Email) {
		return fmt.Errorf("%w: invalid email", ErrInvalidData)
	}
	account.ID = uuid.NewString()
	account.IsActive = true
	account.CreatedAt = time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := ms.emailAccounts.InsertOne(ctx, account)
	return writeErr(err)
}

// DelEmailAccount disconnects the mailbox if it belongs to the user.
func (ms *MongoStorage) DelEmailAccount(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := ms.emailAccounts.DeleteOne(ctx, userScoped(userID, id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
