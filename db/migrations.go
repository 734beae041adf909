package db

import (
	"database/sql"

	"github.com/labstack/gommon/log"
)

// Schema. The UNIQUE constraints here are load-bearing: idempotent handling
// of duplicate deliveries is enforced by the storage layer, not by
// application-level locking.
const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL DEFAULT 'Person',
		manually_approves INTEGER DEFAULT 0,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteActorsTable = `CREATE TABLE IF NOT EXISTS remote_actors (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		uri TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL DEFAULT 'Person',
		display_name TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		public_key_pem TEXT NOT NULL,
		fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_actors_domain ON remote_actors(domain);
	`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		activitypub_id TEXT UNIQUE NOT NULL,
		author_uri TEXT NOT NULL,
		content TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'followers',
		in_reply_to_id TEXT,
		quote_of_id TEXT,
		hashtags TEXT NOT NULL DEFAULT '[]',
		attachments TEXT NOT NULL DEFAULT '[]',
		deleted_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_author_uri ON posts(author_uri);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	`

	sqlCreatePollsTable = `CREATE TABLE IF NOT EXISTS polls (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT UNIQUE NOT NULL,
		multiple INTEGER DEFAULT 0,
		closes_at TIMESTAMP,
		votes_total INTEGER NOT NULL DEFAULT 0
	)`

	sqlCreatePollOptionsTable = `CREATE TABLE IF NOT EXISTS poll_options (
		id TEXT NOT NULL PRIMARY KEY,
		poll_id TEXT NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		votes INTEGER NOT NULL DEFAULT 0,
		UNIQUE(poll_id, position)
	)`

	sqlCreateRelationshipsTable = `CREATE TABLE IF NOT EXISTS relationships (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		target_id TEXT NOT NULL,
		activity_uri TEXT NOT NULL,
		pending INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_uri, target_id)
	)`

	sqlCreateRelationshipsIndices = `
		CREATE INDEX IF NOT EXISTS idx_relationships_activity_uri ON relationships(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_relationships_target_id ON relationships(target_id);
	`

	sqlCreateRelaySubscriptionsTable = `CREATE TABLE IF NOT EXISTS relay_subscriptions (
		id TEXT NOT NULL PRIMARY KEY,
		relay_uri TEXT UNIQUE NOT NULL,
		activity_uri TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateReactionsTable = `CREATE TABLE IF NOT EXISTS reactions (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		post_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT,
		emoji_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_uri, post_id, kind)
	)`

	sqlCreateReactionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_reactions_post_id ON reactions(post_id);
	`

	sqlCreateBoostsTable = `CREATE TABLE IF NOT EXISTS boosts (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		post_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_uri, post_id)
	)`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		kind TEXT NOT NULL,
		post_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_uri ON activities(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
	`
)

// RunMigrations creates all tables and indices.
func (db *DB) RunMigrations() error {
	log.Info("Running database migrations...")

	statements := []string{
		sqlCreateAccountsTable,
		sqlCreateRemoteActorsTable,
		sqlCreateRemoteActorsIndices,
		sqlCreatePostsTable,
		sqlCreatePostsIndices,
		sqlCreatePollsTable,
		sqlCreatePollOptionsTable,
		sqlCreateRelationshipsTable,
		sqlCreateRelationshipsIndices,
		sqlCreateRelaySubscriptionsTable,
		sqlCreateReactionsTable,
		sqlCreateReactionsIndices,
		sqlCreateBoostsTable,
		sqlCreateNotificationsTable,
		sqlCreateActivitiesTable,
		sqlCreateActivitiesIndices,
	}

	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
