package db

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

const (
	sqlInsertRelationship = `INSERT INTO relationships(id, actor_uri, target_id, activity_uri, pending, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectRelationshipByPair = `SELECT id, actor_uri, target_id, activity_uri, pending, created_at
		FROM relationships WHERE actor_uri = ? AND target_id = ?`
	sqlSelectRelationshipByActivityURI = `SELECT id, actor_uri, target_id, activity_uri, pending, created_at
		FROM relationships WHERE activity_uri = ?`
	sqlAcceptRelationship       = `UPDATE relationships SET pending = 0 WHERE id = ?`
	sqlDeleteRelationship       = `DELETE FROM relationships WHERE id = ?`
	sqlDeleteRelationshipByPair = `DELETE FROM relationships WHERE actor_uri = ? AND target_id = ?`

	sqlInsertRelaySubscription = `INSERT INTO relay_subscriptions(id, relay_uri, activity_uri, state, created_at)
		VALUES (?, ?, ?, ?, ?)`
	sqlSelectRelaySubByActivityURI = `SELECT id, relay_uri, activity_uri, state, created_at
		FROM relay_subscriptions WHERE activity_uri = ?`
	sqlSelectRelaySubByRelayURI = `SELECT id, relay_uri, activity_uri, state, created_at
		FROM relay_subscriptions WHERE relay_uri = ?`
	sqlUpdateRelaySubState = `UPDATE relay_subscriptions SET state = ? WHERE id = ?`

	sqlInsertReaction = `INSERT INTO reactions(id, actor_uri, post_id, kind, content, emoji_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlDeleteReaction = `DELETE FROM reactions WHERE actor_uri = ? AND post_id = ? AND kind = ?`

	sqlInsertBoost = `INSERT INTO boosts(id, actor_uri, post_id, created_at)
		VALUES (?, ?, ?, ?)`
	sqlDeleteBoost = `DELETE FROM boosts WHERE actor_uri = ? AND post_id = ?`

	sqlInsertNotification = `INSERT INTO notifications(id, account_id, actor_uri, kind, post_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// CreateRelationship stores a follow. A duplicate (actor, target) pair hits
// the UNIQUE constraint and surfaces as ErrAlreadyExists.
func (db *DB) CreateRelationship(rel *domain.Relationship) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRelationship,
			rel.Id.String(),
			rel.ActorURI,
			rel.TargetId.String(),
			rel.ActivityURI,
			boolToInt(rel.Pending),
			rel.CreatedAt,
		)
		return err
	})
}

func (db *DB) RelationshipByPair(actorURI string, targetId uuid.UUID) (*domain.Relationship, error) {
	return db.scanRelationship(db.db.QueryRow(sqlSelectRelationshipByPair, actorURI, targetId.String()))
}

func (db *DB) RelationshipByActivityURI(activityURI string) (*domain.Relationship, error) {
	return db.scanRelationship(db.db.QueryRow(sqlSelectRelationshipByActivityURI, activityURI))
}

func (db *DB) AcceptRelationship(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptRelationship, id.String())
		return err
	})
}

func (db *DB) DeleteRelationship(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRelationship, id.String())
		return err
	})
}

// DeleteRelationshipByPair removes at most one row and reports whether a
// row existed. Undo of an unknown follow is a no-op.
func (db *DB) DeleteRelationshipByPair(actorURI string, targetId uuid.UUID) (bool, error) {
	removed := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteRelationshipByPair, actorURI, targetId.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		removed = n > 0
		return err
	})
	return removed, err
}

func (db *DB) scanRelationship(row *sql.Row) (*domain.Relationship, error) {
	var rel domain.Relationship
	var idStr, targetStr string
	var pending int
	err := row.Scan(&idStr, &rel.ActorURI, &targetStr, &rel.ActivityURI, &pending, &rel.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rel.Id, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if rel.TargetId, err = uuid.Parse(targetStr); err != nil {
		return nil, err
	}
	rel.Pending = pending != 0
	return &rel, nil
}

func (db *DB) CreateRelaySubscription(sub *domain.RelaySubscription) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRelaySubscription,
			sub.Id.String(), sub.RelayURI, sub.ActivityURI, sub.State, sub.CreatedAt)
		return err
	})
}

func (db *DB) RelaySubscriptionByActivityURI(activityURI string) (*domain.RelaySubscription, error) {
	return db.scanRelaySub(db.db.QueryRow(sqlSelectRelaySubByActivityURI, activityURI))
}

func (db *DB) RelaySubscriptionByRelayURI(relayURI string) (*domain.RelaySubscription, error) {
	return db.scanRelaySub(db.db.QueryRow(sqlSelectRelaySubByRelayURI, relayURI))
}

func (db *DB) SetRelaySubscriptionState(id uuid.UUID, state string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateRelaySubState, state, id.String())
		return err
	})
}

func (db *DB) scanRelaySub(row *sql.Row) (*domain.RelaySubscription, error) {
	var sub domain.RelaySubscription
	var idStr string
	err := row.Scan(&idStr, &sub.RelayURI, &sub.ActivityURI, &sub.State, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sub.Id, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateReaction stores a like/dislike/emoji row, unique per
// (actor, post, kind).
func (db *DB) CreateReaction(r *domain.Reaction) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReaction,
			r.Id.String(), r.ActorURI, r.PostId.String(), string(r.Kind), r.Content, r.EmojiURL, r.CreatedAt)
		return err
	})
}

// DeleteReaction removes at most one row and reports whether it existed.
func (db *DB) DeleteReaction(actorURI string, postId uuid.UUID, kind domain.ReactionKind) (bool, error) {
	removed := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteReaction, actorURI, postId.String(), string(kind))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		removed = n > 0
		return err
	})
	return removed, err
}

func (db *DB) CreateBoost(b *domain.Boost) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertBoost, b.Id.String(), b.ActorURI, b.PostId.String(), b.CreatedAt)
		return err
	})
}

func (db *DB) DeleteBoost(actorURI string, postId uuid.UUID) (bool, error) {
	removed := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteBoost, actorURI, postId.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		removed = n > 0
		return err
	})
	return removed, err
}

func (db *DB) CreateNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(), n.AccountId.String(), n.ActorURI, n.Kind, uuidOrNil(n.PostId), n.CreatedAt)
		return err
	})
}

// LogActivity records an inbound activity for dedup/debugging. Duplicate
// activity URIs are already-seen deliveries and are not an error.
func (db *DB) LogActivity(rec *domain.ActivityRecord) error {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			rec.Id.String(), rec.ActivityURI, rec.ActivityType, rec.ActorURI, rec.ObjectURI, rec.RawJSON, rec.CreatedAt)
		return err
	})
	if err == ErrAlreadyExists {
		return nil
	}
	return err
}
