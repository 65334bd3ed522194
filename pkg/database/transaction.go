package database

import (
	"context"
	"database/sql"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

// Tx is a transaction that may be shared through a context. Only the handle that
// began the transaction commits or rolls it back; handles joined from the context
// are no-ops on Commit and Rollback.
type Tx interface {
	IsOpen() bool
	IsNested() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type txState struct {
	mu     sync.Mutex
	closed bool
}

// Transaction wraps sqlx.Tx and tracks whether it is still usable.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	state  *txState
	nested bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		state:  &txState{},
	}
}

func (t *Transaction) join() *Transaction {
	return &Transaction{
		Tx:     t.Tx,
		logger: t.logger,
		state:  t.state,
		nested: true,
	}
}

// GetTx returns the open transaction carried by ctx, or begins a new one and
// stores it in the returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(*Transaction); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, ctxTx.join(), nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, errors.Wrap(err, "error while beginning transaction")
	}

	newTx := &Transaction{
		Tx:     tx,
		logger: logger,
		state:  &txState{},
	}

	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey).(*Transaction)
	if !ok || t == nil || !t.IsOpen() {
		return nil, false
	}
	return t.join(), true
}

func (t *Transaction) IsOpen() bool {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	return !t.state.closed
}

func (t *Transaction) IsNested() bool {
	return t.nested
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.nested {
		return nil
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	if t.state.closed {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return errors.Wrap(err, "error while rolling back transaction")
	}

	t.state.closed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.nested {
		return nil
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	if t.state.closed {
		return nil
	}

	// closed either way; a failed commit cannot be retried
	t.state.closed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return errors.Wrap(err, "error while committing transaction")
	}

	return nil
}

// RunInTx runs fn inside a transaction carried by the context passed to fn. The
// transaction commits when fn returns nil and rolls back otherwise. When ctx
// already carries a transaction fn joins it.
func RunInTx(ctx context.Context, db DB, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	txCtx, tx, err := db.GetTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(txCtx)
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback(txCtx)
		}
	}()

	if err = fn(txCtx); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// Transactor adapts a DB to callers that only need RunInTx.
type Transactor struct {
	db   DB
	opts *sql.TxOptions
}

func NewTransactor(db DB, opts *sql.TxOptions) *Transactor {
	return &Transactor{db: db, opts: opts}
}

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, t.db, t.opts, fn)
}

// WithSavepoint runs fn against the transaction carried by ctx behind a
// savepoint, so a failed statement rolls back to the savepoint instead of
// aborting the transaction. Without a transaction fn runs against db.
func WithSavepoint(ctx context.Context, db DB, name string, fn func(q Querier) error) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return fn(db)
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Wrapf(err, "failed to create savepoint %s", name)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Wrapf(rbErr, "failed to roll back to savepoint %s", name)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return errors.Wrapf(err, "failed to release savepoint %s", name)
	}
	return nil
}
