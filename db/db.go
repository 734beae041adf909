package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const dbPath = "database.db"

// ErrAlreadyExists is returned when an insert hits a UNIQUE constraint.
// Callers on the inbox path translate it into a benign "already exists"
// outcome rather than an error; federation delivery is at-least-once.
var ErrAlreadyExists = errors.New("db: already exists")

// ErrNotFound is returned when a read matches no row.
var ErrNotFound = errors.New("db: not found")

const (
	// Accounts
	sqlInsertAccount = `INSERT INTO accounts(id, username, kind, manually_approves, public_key_pem, private_key_pem, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccountByUsername = `SELECT id, username, kind, manually_approves, public_key_pem, private_key_pem, created_at
		FROM accounts WHERE username = ?`
	sqlSelectAccountById = `SELECT id, username, kind, manually_approves, public_key_pem, private_key_pem, created_at
		FROM accounts WHERE id = ?`

	// Remote actors
	sqlUpsertRemoteActor = `INSERT INTO remote_actors(id, username, domain, uri, kind, display_name, inbox_uri, shared_inbox_uri, public_key_pem, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			username = excluded.username,
			domain = excluded.domain,
			kind = excluded.kind,
			display_name = excluded.display_name,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			public_key_pem = excluded.public_key_pem,
			fetched_at = excluded.fetched_at`
	sqlSelectRemoteActorByURI = `SELECT id, username, domain, uri, kind, display_name, inbox_uri, shared_inbox_uri, public_key_pem, fetched_at
		FROM remote_actors WHERE uri = ?`
)

// Connect opens a database at the given path, applies connection defaults
// and runs migrations. Tests use a throwaway path.
func Connect(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Warnf("Failed to enable WAL mode: %v", err)
	} else {
		log.Infof("Database journal mode: %s", journalMode)
	}

	// Connection defaults for a concurrent federation workload
	db.Exec("PRAGMA synchronous = NORMAL")
	db.Exec("PRAGMA cache_size = -64000")
	db.Exec("PRAGMA temp_store = MEMORY")
	db.Exec("PRAGMA busy_timeout = 5000")
	db.Exec("PRAGMA foreign_keys = ON")

	instance := &DB{db: db}
	if err := instance.RunMigrations(); err != nil {
		return nil, err
	}
	return instance, nil
}

// GetDB returns the process-wide database, opening it on first use.
func GetDB() *DB {
	dbOnce.Do(func() {
		instance, err := Connect(dbPath)
		if err != nil {
			panic(err)
		}
		dbInstance = instance
	})

	return dbInstance
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction, retrying
// on SQLITE_BUSY. Each retry rolls back and begins a fresh transaction so
// no half-applied writes carry over between attempts.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	for {
		tx, err := db.db.BeginTx(ctx, nil)
		if err != nil {
			log.Errorf("error starting transaction: %s", err)
			return err
		}
		err = f(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
			log.Errorf("error committing transaction: %s", err)
		} else {
			tx.Rollback()
		}
		var serr *sqlite.Error
		if errors.As(err, &serr) && serr.Code() == sqlitelib.SQLITE_BUSY && ctx.Err() == nil {
			continue
		}
		return translateErr(err)
	}
}

// translateErr maps sqlite unique-constraint violations onto
// ErrAlreadyExists so callers can treat duplicates as idempotent no-ops.
func translateErr(err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrAlreadyExists
		}
	}
	return err
}

func (db *DB) CreateAccount(acc *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount,
			acc.Id.String(),
			acc.Username,
			string(acc.Kind),
			boolToInt(acc.ManuallyApproves),
			acc.PublicKeyPem,
			acc.PrivateKeyPem,
			acc.CreatedAt,
		)
		return err
	})
}

func (db *DB) AccountByUsername(username string) (*domain.Account, error) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountByUsername, username))
}

func (db *DB) AccountById(id uuid.UUID) (*domain.Account, error) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
}

func (db *DB) scanAccount(row *sql.Row) (*domain.Account, error) {
	var acc domain.Account
	var idStr, kind string
	var manual int
	err := row.Scan(&idStr, &acc.Username, &kind, &manual, &acc.PublicKeyPem, &acc.PrivateKeyPem, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	acc.Id, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	acc.Kind = domain.ActorKind(kind)
	acc.ManuallyApproves = manual != 0
	return &acc, nil
}

// UpsertRemoteActor inserts or refreshes a cached remote actor, keyed on the
// UNIQUE uri column. Concurrent resolution of the same URI converges on one
// row; the constraint does the arbitration.
func (db *DB) UpsertRemoteActor(actor *domain.RemoteActor) (*domain.RemoteActor, error) {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRemoteActor,
			actor.Id.String(),
			actor.Username,
			actor.Domain,
			actor.URI,
			string(actor.Kind),
			actor.DisplayName,
			actor.InboxURI,
			actor.SharedInboxURI,
			actor.PublicKeyPem,
			actor.FetchedAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return db.RemoteActorByURI(actor.URI)
}

func (db *DB) RemoteActorByURI(uri string) (*domain.RemoteActor, error) {
	row := db.db.QueryRow(sqlSelectRemoteActorByURI, uri)
	var actor domain.RemoteActor
	var idStr, kind string
	var displayName, sharedInbox sql.NullString
	err := row.Scan(&idStr, &actor.Username, &actor.Domain, &actor.URI, &kind,
		&displayName, &actor.InboxURI, &sharedInbox, &actor.PublicKeyPem, &actor.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	actor.Id, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	actor.Kind = domain.ActorKind(kind)
	actor.DisplayName = displayName.String
	actor.SharedInboxURI = sharedInbox.String
	return &actor, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
