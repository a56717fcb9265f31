package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FilterRules returns the sender rules of the user, newest first.
func (ms *MongoStorage) FilterRules(ctx context.Context, userID string) ([]FilterRule, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findAll[FilterRule](ctx, ms.filterRules, bson.M{"userId": userID}, opts)
}

// AddFilterRule stores a new active rule for the user.
func (ms *MongoStorage) AddFilterRule(ctx context.Context, rule *FilterRule) error {
	if rule == nil || rule.UserID == "" {
		return ErrInvalidData
	}
	if rule.Type != FilterBlocked && rule.Type != FilterAllowed {
		return ErrInvalidData
	}
	rule.EmailPattern = strings.TrimSpace(rule.EmailPattern)
	if rule.EmailPattern == "" {
		return ErrInvalidData
	}
	rule.ID = uuid.NewString()
	rule.IsActive = true
	rule.CreatedAt = time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := ms.filterRules.InsertOne(ctx, rule)
	return writeErr(err)
}

// SetFilterRuleActive enables or disables the rule of the user.
func (ms *MongoStorage) SetFilterRuleActive(ctx context.Context, userID, id string, active bool) (*FilterRule, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	rule := &FilterRule{}
	update := bson.M{"$set": bson.M{"isActive": active}}
	if err := ms.filterRules.FindOneAndUpdate(ctx, userScoped(userID, id), update, opts).Decode(rule); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

// DelFilterRule removes the rule if it belongs to the user.
func (ms *MongoStorage) DelFilterRule(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := ms.filterRules.DeleteOne(ctx, userScoped(userID, id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
