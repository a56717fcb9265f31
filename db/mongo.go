package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

// ResetDBEnv is the environment variable that, when set, makes New drop every
// collection before running the migrations. Only meant for development.
const ResetDBEnv = "MAILCLEAN_MONGO_RESET_DB"

const defaultTimeout = 10 * time.Second

// MongoStorage uses an external MongoDB service for storing the dashboard
// data of the users and the billing state received from Stripe.
type MongoStorage struct {
	DBClient *mongo.Client
	database string
	keysLock sync.RWMutex

	users            *mongo.Collection
	emailAccounts    *mongo.Collection
	emailStats       *mongo.Collection
	filterRules      *mongo.Collection
	quarantineEmails *mongo.Collection
	webhookEvents    *mongo.Collection
	migrations       *mongo.Collection
}

// New connects to the MongoDB server at url, applies the pending migrations
// on database and returns the storage ready to be used.
func New(url, database string) (*MongoStorage, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx2, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ms := &MongoStorage{
		DBClient: client,
		database: database,
	}
	ms.initCollections()
	if reset := os.Getenv(ResetDBEnv); reset != "" {
		if err := ms.Reset(); err != nil {
			return nil, err
		}
	}
	if err := ms.RunMigrationsUp(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return ms, nil
}

// Close disconnects the client from the server.
func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.DBClient.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Ping checks the connection with the primary node.
func (ms *MongoStorage) Ping(ctx context.Context) error {
	return ms.DBClient.Ping(ctx, readpref.Primary())
}

// Reset drops the database and applies again every migration.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database")
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ms.DBClient.Database(ms.database).Drop(ctx); err != nil {
		return err
	}
	return ms.RunMigrationsUp()
}
