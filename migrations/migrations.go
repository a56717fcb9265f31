// Package migrations holds the versioned MongoDB schema changes of the
// service. Every file registers one migration from its init function.
package migrations

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names shared by the migrations and the storage layer.
const (
	UsersCollection            = "users"
	EmailAccountsCollection    = "emailAccounts"
	EmailStatsCollection       = "emailStats"
	FilterRulesCollection      = "filterRules"
	QuarantineEmailsCollection = "quarantineEmails"
	WebhookEventsCollection    = "webhookEvents"
	MigrationsCollection       = "migrations"
)

// MigrationFunc represents a migration function
type MigrationFunc func(ctx context.Context, database *mongo.Database) error

// Migration represents a single migration
type Migration struct {
	Version int
	Name    string
	Up      MigrationFunc
	Down    MigrationFunc
}

var migrationRegistry = make(map[int]Migration)

// AddMigration registers a migration. Versions must be unique, the last
// registration of a version wins.
func AddMigration(version int, name string, up, down MigrationFunc) {
	migrationRegistry[version] = Migration{
		Version: version,
		Name:    name,
		Up:      up,
		Down:    down,
	}
}

// DelMigration deregisters a migration.
func DelMigration(version int) { delete(migrationRegistry, version) }

// Get returns the migration registered with the version.
func Get(version int) (Migration, bool) {
	mig, ok := migrationRegistry[version]
	return mig, ok
}

// Latest returns the highest registered version, 0 when there is none.
func Latest() int {
	latest := 0
	for version := range migrationRegistry {
		latest = max(latest, version)
	}
	return latest
}

// Pending returns the migrations newer than the applied version, oldest
// first.
func Pending(applied int) []Migration {
	migs := []Migration{}
	for _, mig := range migrationRegistry {
		if mig.Version > applied {
			migs = append(migs, mig)
		}
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs
}
