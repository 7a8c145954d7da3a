package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"acro-shop/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	// ErrInsufficientStock returned when requested qty exceeds available stock.
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart empty")
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrStaleState is returned by conditional updates whose precondition
	// no longer holds, e.g. a payment status that moved on in the meantime.
	ErrStaleState = errors.New("state changed concurrently")
)

// PostgresStore is a Store backed by Postgres and has in-process locks
type PostgresStore struct {
	DB *sqlx.DB

	// per-owner mutexes so that cart edits and checkout of one cart do not
	// interleave inside this process. Keys are "u:<id>" / "s:<id>".
	locks ownerLocks
}

// ownerLocks hands out one mutex per key and forgets it once nobody holds
// or waits on it, so session ids chosen by clients do not pile up.
type ownerLocks struct {
	mu sync.Mutex
	m  map[string]*ownerLock
}

type ownerLock struct {
	sync.Mutex
	refs int
}

func (l *ownerLocks) lock(key string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*ownerLock)
	}
	e, ok := l.m[key]
	if !ok {
		e = &ownerLock{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *ownerLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Options tune the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

func NewPostgresStore(ctx context.Context, dsn string, opts Options) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// Ping reports whether the database answers.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// lockFor acquires the process-local lock of a cart owner. Returns unlock func.
func (s *PostgresStore) lockFor(owner model.Owner) func() {
	key := "s:" + owner.SessionID
	if owner.UserID != "" {
		key = "u:" + owner.UserID
	}
	return s.locks.lock(key)
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	// no-op after a successful commit
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ownerColumn returns the column and value identifying owner's rows.
func ownerColumn(owner model.Owner) (string, string) {
	if owner.UserID != "" {
		return "user_id", owner.UserID
	}
	return "session_id", owner.SessionID
}

// translate maps driver errors onto the package's sentinel errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return ErrNotFound
		}
	}
	return err
}

// expectOne turns a zero-row conditional update into errIfNone.
func expectOne(res sql.Result, errIfNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errIfNone
	}
	return nil
}
