package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mailclean/saas-backend/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WeeklyStatsDays is how many days back WeeklyStats looks.
const WeeklyStatsDays = 7

// DailyStats returns the counters of the user for the given YYYY-MM-DD day.
func (ms *MongoStorage) DailyStats(ctx context.Context, userID, date string) (*EmailStats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	stats := &EmailStats{}
	err := ms.emailStats.FindOne(ctx, bson.M{"userId": userID, "date": date}).Decode(stats)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return stats, nil
}

// WeeklyStats returns the daily counters of the user from seven days before
// now up to today, sorted by ascending day.
func (ms *MongoStorage) WeeklyStats(ctx context.Context, userID string, now time.Time) ([]EmailStats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	since := internal.DateKey(now.AddDate(0, 0, -WeeklyStatsDays))
	filter := bson.M{"userId": userID, "date": bson.M{"$gte": since}}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	return findAll[EmailStats](ctx, ms.emailStats, filter, opts)
}

// UpsertDailyStats sets the counters of the user for stats.Date, creating the
// day document if it does not exist yet.
func (ms *MongoStorage) UpsertDailyStats(ctx context.Context, stats *EmailStats) (*EmailStats, error) {
	if stats == nil || stats.UserID == "" || !internal.ValidDateKey(stats.Date) {
		return nil, ErrInvalidData
	}
	if stats.EmailsProcessed < 0 || stats.SpamBlocked < 0 || stats.FalsePositives < 0 ||
		stats.AIEfficiency < 0 || stats.AIEfficiency > 100 {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	filter := bson.M{"userId": stats.UserID, "date": stats.Date}
	update := bson.M{
		"$set": bson.M{
			"emailsProcessed": stats.EmailsProcessed,
			"spamBlocked":     stats.SpamBlocked,
			"falsePositives":  stats.FalsePositives,
			"aiEfficiency":    stats.AIEfficiency,
		},
		"$setOnInsert": bson.M{"_id": uuid.NewString()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	stored := &EmailStats{}
	if err := ms.emailStats.FindOneAndUpdate(ctx, filter, update, opts).Decode(stored); err != nil {
		return nil, writeErr(err)
	}
	return stored, nil
}
