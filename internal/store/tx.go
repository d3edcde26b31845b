package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is the Statement Executor bound to one transaction.
//
// Thread-safety: NOT safe for concurrent use. One DAO session drives one Tx.
type Tx struct {
	tx        *sql.Tx
	savepoint int
}

// NewTx wraps an existing transaction, for callers that own the
// transaction themselves.
func NewTx(tx *sql.Tx) *Tx {
	return &Tx{tx: tx}
}

// Savepoint runs fn inside a savepoint. The savepoint is released when fn
// succeeds and rolled back when it fails, leaving the enclosing transaction
// usable either way. Savepoints nest.
func (t *Tx) Savepoint(ctx context.Context, fn func() error) error {
	t.savepoint++
	name := fmt.Sprintf("sp_%d", t.savepoint)
	defer func() { t.savepoint-- }()

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w (after %v)", rbErr, err)
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return fmt.Errorf("release savepoint: %w (after %v)", relErr, err)
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
