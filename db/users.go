package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailclean/saas-backend/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

func (ms *MongoStorage) fetchUser(ctx context.Context, filter bson.M) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	user := &User{}
	if err := ms.users.FindOne(ctx, filter).Decode(user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// User method returns the user with the given ID. If the user doesn't exist, it
// returns ErrNotFound.
func (ms *MongoStorage) User(ctx context.Context, id string) (*User, error) {
	return ms.fetchUser(ctx, bson.M{"_id": id})
}

// UserByEmail method returns the user with the given email. If the user doesn't
// exist, it returns ErrNotFound.
func (ms *MongoStorage) UserByEmail(ctx context.Context, email string) (*User, error) {
	return ms.fetchUser(ctx, bson.M{"email": internal.NormalizeEmail(email)})
}

// UserByStripeCustomer returns the user bound to the Stripe customer.
func (ms *MongoStorage) UserByStripeCustomer(ctx context.Context, customerID string) (*User, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return ms.fetchUser(ctx, bson.M{"subscription.stripeCustomerId": customerID})
}

// UserByStripeSubscription returns the user bound to the Stripe subscription.
func (ms *MongoStorage) UserByStripeSubscription(ctx context.Context, subscriptionID string) (*User, error) {
	if subscriptionID == "" {
		return nil, ErrNotFound
	}
	return ms.fetchUser(ctx, bson.M{"subscription.stripeSubscriptionId": subscriptionID})
}

// CreateUser stores a new user profile. The plan defaults to free and the
// creation date to now. It returns ErrAlreadyExists if the ID or the email
// are already registered.
func (ms *MongoStorage) CreateUser(ctx context.Context, user *User) error {
	if err := prepareUser(user); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if _, err := ms.users.InsertOne(ctx, user); err != nil {
		return writeErr(err)
	}
	return nil
}

// EnsureUser creates the user profile when it does not exist yet and returns
// the stored one. Existing profiles are not modified.
func (ms *MongoStorage) EnsureUser(ctx context.Context, user *User) (*User, error) {
	if err := prepareUser(user); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	stored := &User{}
	err := ms.users.FindOneAndUpdate(ctx, bson.M{"_id": user.ID}, bson.M{"$setOnInsert": user}, opts).Decode(stored)
	if err != nil {
		return nil, writeErr(err)
	}
	return stored, nil
}

func prepareUser(user *User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidData
	}
	user.Email = internal.NormalizeEmail(user.Email)
	if !internal.ValidEmail(user.Email) {
		return fmt.Errorf("%w: invalid email", ErrInvalidData)
	}
	if user.Plan == "" {
		user.Plan = PlanFree
	}
	if !user.Plan.Valid() {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidData, user.Plan)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	return nil
}

type userProfileUpdate struct {
	Name string `bson:"name"`
}

// UpdateUserName changes the display name of the user.
func (ms *MongoStorage) UpdateUserName(ctx context.Context, id, name string) (*User, error) {
	update, err := dynamicUpdateDocument(userProfileUpdate{Name: name}, []string{"name"})
	if err != nil {
		return nil, err
	}
	return ms.updateUser(ctx, id, update)
}

// SetUserPlan moves the user to the given plan.
func (ms *MongoStorage) SetUserPlan(ctx context.Context, id string, plan PlanID) (*User, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidData, plan)
	}
	return ms.updateUser(ctx, id, bson.M{"$set": bson.M{"plan": plan}})
}

// SetUserSubscription merges the non empty fields of sub into the billing
// state of the user and, if plan is not empty, sets the plan too.
func (ms *MongoStorage) SetUserSubscription(ctx context.Context, id string, plan PlanID, sub UserSubscription) (*User, error) {
	if plan != "" && !plan.Valid() {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidData, plan)
	}
	subUpdate, err := dynamicUpdateDocument(sub, nil)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for k, v := range subUpdate["$set"].(bson.M) {
		set["subscription."+k] = v
	}
	if plan != "" {
		set["plan"] = plan
	}
	if len(set) == 0 {
		return ms.User(ctx, id)
	}
	return ms.updateUser(ctx, id, bson.M{"$set": set})
}

func (ms *MongoStorage) updateUser(ctx context.Context, id string, update bson.M) (*User, error) {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	user := &User{}
	if err := ms.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, writeErr(err)
	}
	return user, nil
}

// DelUser removes the user profile and every dashboard record it owns.
func (ms *MongoStorage) DelUser(ctx context.Context, id string) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := ms.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	owned := bson.M{"userId": id}
	for _, col := range []*mongo.Collection{ms.emailAccounts, ms.emailStats, ms.filterRules, ms.quarantineEmails} {
		if _, err := col.DeleteMany(ctx, owned); err != nil {
			log.Warnw("failed to delete user records", "collection", col.Name(), "user", id, "error", err)
		}
	}
	return nil
}
