package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

const (
	sqlInsertPost = `INSERT INTO posts(id, activitypub_id, author_uri, content, visibility, in_reply_to_id, quote_of_id, hashtags, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPostByAPId = `SELECT id, activitypub_id, author_uri, content, visibility, in_reply_to_id, quote_of_id, hashtags, attachments, deleted_at, created_at
		FROM posts WHERE activitypub_id = ?`
	sqlSelectPostById = `SELECT id, activitypub_id, author_uri, content, visibility, in_reply_to_id, quote_of_id, hashtags, attachments, deleted_at, created_at
		FROM posts WHERE id = ?`
	sqlSelectPublicPosts = `SELECT id, activitypub_id, author_uri, content, visibility, in_reply_to_id, quote_of_id, hashtags, attachments, deleted_at, created_at
		FROM posts WHERE visibility = 'public' AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT ?`
	sqlTombstonePost = `UPDATE posts SET deleted_at = ?, content = '' WHERE id = ? AND deleted_at IS NULL`

	sqlInsertPoll = `INSERT INTO polls(id, post_id, multiple, closes_at, votes_total)
		VALUES (?, ?, ?, ?, 0)`
	sqlInsertPollOption = `INSERT INTO poll_options(id, poll_id, name, position, votes)
		VALUES (?, ?, ?, ?, 0)`
	sqlSelectPollByPostId = `SELECT id, post_id, multiple, closes_at, votes_total FROM polls WHERE post_id = ?`
	sqlSelectPollOptions  = `SELECT id, poll_id, name, position, votes FROM poll_options WHERE poll_id = ? ORDER BY position`

	// Atomic counter updates; never read-modify-write.
	sqlIncrementOptionVotes = `UPDATE poll_options SET votes = votes + 1 WHERE id = ?`
	sqlIncrementPollTotal   = `UPDATE polls SET votes_total = votes_total + 1 WHERE id = ?`
)

// CreatePost inserts a post and, when present, its poll and options in one
// transaction. A UNIQUE violation on activitypub_id surfaces as
// ErrAlreadyExists; partial application of post+poll never happens.
func (db *DB) CreatePost(post *domain.Post) error {
	hashtags, err := json.Marshal(emptyIfNil(post.Hashtags))
	if err != nil {
		return err
	}
	attachments, err := json.Marshal(emptyIfNil(post.Attachments))
	if err != nil {
		return err
	}

	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertPost,
			post.Id.String(),
			post.ActivityPubId,
			post.AuthorURI,
			post.Content,
			string(post.Visibility),
			uuidOrNil(post.InReplyToId),
			uuidOrNil(post.QuoteOfId),
			string(hashtags),
			string(attachments),
			post.CreatedAt,
		)
		if err != nil {
			return err
		}

		if post.Poll == nil {
			return nil
		}

		poll := post.Poll
		if _, err := tx.Exec(sqlInsertPoll, poll.Id.String(), post.Id.String(), boolToInt(poll.Multiple), poll.ClosesAt); err != nil {
			return err
		}
		for i := range poll.Options {
			opt := &poll.Options[i]
			if _, err := tx.Exec(sqlInsertPollOption, opt.Id.String(), poll.Id.String(), opt.Name, opt.Position); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) PostByActivityPubId(apId string) (*domain.Post, error) {
	return db.scanPost(db.db.QueryRow(sqlSelectPostByAPId, apId))
}

func (db *DB) PostById(id uuid.UUID) (*domain.Post, error) {
	return db.scanPost(db.db.QueryRow(sqlSelectPostById, id.String()))
}

// PublicPosts returns the newest local-timeline public posts, for the feed.
func (db *DB) PublicPosts(limit int) ([]domain.Post, error) {
	rows, err := db.db.Query(sqlSelectPublicPosts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := db.scanPostRows(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// TombstonePost soft-deletes a post, leaving a marker so references resolve
// to "deleted" rather than "missing". A second tombstone is a no-op.
func (db *DB) TombstonePost(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlTombstonePost, time.Now(), id.String())
		return err
	})
}

func (db *DB) PollByPostId(postId uuid.UUID) (*domain.Poll, error) {
	row := db.db.QueryRow(sqlSelectPollByPostId, postId.String())
	var poll domain.Poll
	var idStr, postIdStr string
	var multiple int
	var closesAt sql.NullTime
	err := row.Scan(&idStr, &postIdStr, &multiple, &closesAt, &poll.VotesTotal)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if poll.Id, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if poll.PostId, err = uuid.Parse(postIdStr); err != nil {
		return nil, err
	}
	poll.Multiple = multiple != 0
	if closesAt.Valid {
		t := closesAt.Time
		poll.ClosesAt = &t
	}

	rows, err := db.db.Query(sqlSelectPollOptions, poll.Id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var opt domain.PollOption
		var optIdStr, pollIdStr string
		if err := rows.Scan(&optIdStr, &pollIdStr, &opt.Name, &opt.Position, &opt.Votes); err != nil {
			return nil, err
		}
		if opt.Id, err = uuid.Parse(optIdStr); err != nil {
			return nil, err
		}
		opt.PollId = poll.Id
		poll.Options = append(poll.Options, opt)
	}
	return &poll, rows.Err()
}

// RecordVote atomically increments an option's counter and the poll total.
func (db *DB) RecordVote(pollId, optionId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlIncrementOptionVotes, optionId.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlIncrementPollTotal, pollId.String())
		return err
	})
}

func (db *DB) scanPost(row *sql.Row) (*domain.Post, error) {
	var post domain.Post
	var idStr, visibility, hashtags, attachments string
	var inReplyTo, quoteOf sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&idStr, &post.ActivityPubId, &post.AuthorURI, &post.Content, &visibility,
		&inReplyTo, &quoteOf, &hashtags, &attachments, &deletedAt, &post.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return db.fillPost(&post, idStr, visibility, hashtags, attachments, inReplyTo, quoteOf, deletedAt)
}

func (db *DB) scanPostRows(rows *sql.Rows) (*domain.Post, error) {
	var post domain.Post
	var idStr, visibility, hashtags, attachments string
	var inReplyTo, quoteOf sql.NullString
	var deletedAt sql.NullTime
	err := rows.Scan(&idStr, &post.ActivityPubId, &post.AuthorURI, &post.Content, &visibility,
		&inReplyTo, &quoteOf, &hashtags, &attachments, &deletedAt, &post.CreatedAt)
	if err != nil {
		return nil, err
	}
	return db.fillPost(&post, idStr, visibility, hashtags, attachments, inReplyTo, quoteOf, deletedAt)
}

func (db *DB) fillPost(post *domain.Post, idStr, visibility, hashtags, attachments string,
	inReplyTo, quoteOf sql.NullString, deletedAt sql.NullTime) (*domain.Post, error) {
	var err error
	if post.Id, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	post.Visibility = domain.Visibility(visibility)
	if err := json.Unmarshal([]byte(hashtags), &post.Hashtags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attachments), &post.Attachments); err != nil {
		return nil, err
	}
	if inReplyTo.Valid {
		id, err := uuid.Parse(inReplyTo.String)
		if err != nil {
			return nil, err
		}
		post.InReplyToId = &id
	}
	if quoteOf.Valid {
		id, err := uuid.Parse(quoteOf.String)
		if err != nil {
			return nil, err
		}
		post.QuoteOfId = &id
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		post.DeletedAt = &t
	}
	return post, nil
}

func uuidOrNil(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
