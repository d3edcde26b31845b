package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// Insert writes a new instance row. Duplicate identifiers fail with a
// unique constraint error.
func (t *Tx) Insert(ctx context.Context, row ir.Row) error {
	attrs, err := marshalAttrs(row.Attrs)
	if err != nil {
		return fmt.Errorf("insert %s: %w", row.ID, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO instances (id, type, version, created_at, updated_at, attrs)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		row.ID,
		row.Type,
		row.Version,
		formatTime(row.Created),
		formatTime(row.Updated),
		attrs,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", row.ID, err)
	}
	return nil
}

// Update merges attributes into an instance and bumps its version.
// Returns the new version.
//
// The merge is a JSON merge patch: keys with nil values are removed.
// When ExpectedVersion is non-zero the update only applies to that version;
// otherwise it applies to whatever is stored. updated_at never moves
// backwards.
//
// Errors: ir.ErrRowNotFound when the id is unknown, *ir.StaleVersionError
// when the stored version differs from ExpectedVersion.
func (t *Tx) Update(ctx context.Context, u ir.Update) (int64, error) {
	patch, err := marshalAttrs(u.Attrs)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", u.ID, err)
	}

	query := `
		UPDATE instances
		SET attrs = json_patch(attrs, ?),
		    version = version + 1,
		    updated_at = MAX(updated_at, ?)
		WHERE id = ?`
	args := []any{patch, formatTime(u.Updated), u.ID}
	if u.ExpectedVersion != 0 {
		query += " AND version = ?"
		args = append(args, u.ExpectedVersion)
	}
	query += " RETURNING version"

	var version int64
	err = t.tx.QueryRowContext(ctx, query, args...).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("update %s: %w", u.ID, err)
	}

	// Nothing matched: tell a missing row from a lost precondition.
	var stored int64
	err = t.tx.QueryRowContext(ctx, `SELECT version FROM instances WHERE id = ?`, u.ID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("update %s: %w", u.ID, ir.ErrRowNotFound)
	case err != nil:
		return 0, fmt.Errorf("update %s: %w", u.ID, err)
	}
	return 0, &ir.StaleVersionError{ID: u.ID, Expected: u.ExpectedVersion, Stored: stored}
}

// Delete removes instance rows. Links touching them must be removed first
// (see UnlinkAll); otherwise the foreign keys reject the delete.
// Returns the number of rows removed.
func (t *Tx) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM instances WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("delete instances: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete instances: %w", err)
	}
	return n, nil
}

// Link adds an edge at the end of the source's list for that relation.
// Adding an existing edge is a no-op.
func (t *Tx) Link(ctx context.Context, l ir.Link) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO links (relation, source_id, target_id, position)
		SELECT ?, ?, ?, COALESCE(MAX(position), 0) + 1
		FROM links WHERE relation = ? AND source_id = ?
		ON CONFLICT (relation, source_id, target_id) DO NOTHING
	`,
		l.Relation, l.Source, l.Target,
		l.Relation, l.Source,
	)
	if err != nil {
		return fmt.Errorf("link %s %s->%s: %w", l.Relation, l.Source, l.Target, err)
	}
	return nil
}

// Unlink removes one edge. Returns whether it existed.
func (t *Tx) Unlink(ctx context.Context, l ir.Link) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM links WHERE relation = ? AND source_id = ? AND target_id = ?`,
		l.Relation, l.Source, l.Target)
	if err != nil {
		return false, fmt.Errorf("unlink %s %s->%s: %w", l.Relation, l.Source, l.Target, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlink %s: %w", l.Relation, err)
	}
	return n > 0, nil
}

// UnlinkAll removes every edge touching any of ids, on either end.
func (t *Tx) UnlinkAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in := placeholders(len(ids))
	args := append(stringArgs(ids), stringArgs(ids)...)
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM links WHERE source_id IN ("+in+") OR target_id IN ("+in+")",
		args...)
	if err != nil {
		return fmt.Errorf("unlink instances: %w", err)
	}
	return nil
}

// NextSequence increments the named SEQUENCE counter inside the
// transaction and returns the new value. The first value of a name is 1.
// The write lock serializes concurrent transactions on the counter row, so
// runtimes sharing one database file never issue the same value twice, and
// a rolled back transaction gives its values back.
func (t *Tx) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return value, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
