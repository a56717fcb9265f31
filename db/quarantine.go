package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mailclean/saas-backend/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// QuarantineEmails returns the messages of the user pending review, the most
// recently received first.
func (ms *MongoStorage) QuarantineEmails(ctx context.Context, userID string) ([]QuarantineEmail, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	filter := bson.M{"userId": userID, "isReviewed": false}
	opts := options.Find().SetSort(bson.D{{Key: "receivedAt", Value: -1}})
	return findAll[QuarantineEmail](ctx, ms.quarantineEmails, filter, opts)
}

// AddQuarantineEmail records a suspect message for the user. The reception
// date defaults to now.
func (ms *MongoStorage) AddQuarantineEmail(ctx context.Context, email *QuarantineEmail) error {
	if email == nil || email.UserID == "" {
		return ErrInvalidData
	}
	if email.Category != CategorySpam && email.Category != CategoryPhishing {
		return ErrInvalidData
	}
	if email.Confidence < 0 || email.Confidence > 100 {
		return ErrInvalidData
	}
	email.FromEmail = internal.NormalizeEmail(email.FromEmail)
	if email.FromEmail == "" {
		return ErrInvalidData
	}
	email.ID = uuid.NewString()
	email.IsReviewed = false
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := ms.quarantineEmails.InsertOne(ctx, email)
	return writeErr(err)
}

// ReleaseQuarantineEmail marks the message as reviewed so it leaves the
// quarantine list.
func (ms *MongoStorage) ReleaseQuarantineEmail(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := ms.quarantineEmails.UpdateOne(ctx, userScoped(userID, id),
		bson.M{"$set": bson.M{"isReviewed": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DelQuarantineEmail removes the message if it belongs to the user.
func (ms *MongoStorage) DelQuarantineEmail(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := ms.quarantineEmails.DeleteOne(ctx, userScoped(userID, id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
