package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailclean/saas-backend/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// migrationTimeout bounds every single migration step.
const migrationTimeout = 5 * time.Minute

// MigrationRecord is the document stored for every applied migration.
type MigrationRecord struct {
	Version   int       `bson:"version"`
	Name      string    `bson:"name"`
	AppliedAt time.Time `bson:"appliedAt"`
}

// RunMigrationsUp applies, in order, every registered migration newer than
// the last one recorded in the database.
func (ms *MongoStorage) RunMigrationsUp() error {
	applied, err := ms.lastAppliedMigration()
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}
	pending := migrations.Pending(applied)
	if len(pending) == 0 {
		log.Infow("database schema up to date", "version", applied)
		return nil
	}
	log.Infow("migrating database schema", "from", applied, "to", pending[len(pending)-1].Version)
	database := ms.DBClient.Database(ms.database)
	for _, mig := range pending {
		if err := ms.migrationStep(mig.Version, mig.Name, func(ctx context.Context) error {
			if err := mig.Up(ctx, database); err != nil {
				return err
			}
			record := MigrationRecord{Version: mig.Version, Name: mig.Name, AppliedAt: time.Now()}
			_, err := ms.migrations.ReplaceOne(ctx, bson.M{"version": mig.Version}, record,
				options.Replace().SetUpsert(true))
			return err
		}); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// RunMigrationsDown reverts the last steps applied migrations, newest first.
// Steps out of range revert every applied migration.
func (ms *MongoStorage) RunMigrationsDown(steps int) error {
	applied, err := ms.lastAppliedMigration()
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}
	if steps <= 0 || steps > applied {
		steps = applied
	}
	database := ms.DBClient.Database(ms.database)
	for version := applied; version > applied-steps; version-- {
		mig, ok := migrations.Get(version)
		if !ok {
			return fmt.Errorf("migration %d not registered", version)
		}
		if err := ms.migrationStep(mig.Version, mig.Name, func(ctx context.Context) error {
			if err := mig.Down(ctx, database); err != nil {
				return err
			}
			_, err := ms.migrations.DeleteOne(ctx, bson.M{"version": mig.Version})
			return err
		}); err != nil {
			return fmt.Errorf("failed to revert migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

func (ms *MongoStorage) migrationStep(version int, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		return err
	}
	log.Infow("migration step done", "version", version, "name", name, "took", time.Since(start).String())
	return nil
}

// lastAppliedMigration returns the highest recorded version, 0 on a new
// database.
func (ms *MongoStorage) lastAppliedMigration() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	record := MigrationRecord{}
	if err := ms.migrations.FindOne(ctx, bson.M{}, opts).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}
	return record.Version, nil
}
