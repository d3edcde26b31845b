package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/querysql"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Select returns the instance rows matching q.
// Returns an empty slice (not nil) when nothing matches.
func (t *Tx) Select(ctx context.Context, q queryir.Select) ([]ir.Row, error) {
	return selectRows(ctx, t.tx, q)
}

// Count returns the number of instances matching q.
func (t *Tx) Count(ctx context.Context, q queryir.Select) (int64, error) {
	return countRows(ctx, t.tx, q)
}

// Links returns the edges matching q, ordered by source, position, target.
func (t *Tx) Links(ctx context.Context, q queryir.Links) ([]ir.Link, error) {
	return selectLinks(ctx, t.tx, q)
}

// Targets returns the target ids linked from source under relation, in
// position order.
func (t *Tx) Targets(ctx context.Context, relation, source string) ([]string, error) {
	links, err := t.Links(ctx, queryir.Links{Relation: relation, Sources: []string{source}})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.Target
	}
	return ids, nil
}

// Sources returns the source ids linking to target under relation, in
// source insertion order.
func (t *Tx) Sources(ctx context.Context, relation, target string) ([]string, error) {
	links, err := t.Links(ctx, queryir.Links{Relation: relation, Targets: []string{target}})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.Source
	}
	return ids, nil
}

// Select runs q outside any transaction. Used by read-only CLI commands.
func (s *Store) Select(ctx context.Context, q queryir.Select) ([]ir.Row, error) {
	return selectRows(ctx, s.db, q)
}

// LoadSequences reads the persisted SEQUENCE counters outside a transaction.
func (s *Store) LoadSequences(ctx context.Context) (map[string]int64, error) {
	return loadSequences(ctx, s.db)
}

func selectRows(ctx context.Context, db queryer, q queryir.Select) ([]ir.Row, error) {
	query, args, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	out := []ir.Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return out, nil
}

func countRows(ctx context.Context, db queryer, q queryir.Select) (int64, error) {
	query, args, err := querysql.Compile(queryir.Count{Of: q})
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count instances: %w", err)
	}
	return n, nil
}

func selectLinks(ctx context.Context, db queryer, q queryir.Links) ([]ir.Link, error) {
	query, args, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	out := []ir.Link{}
	for rows.Next() {
		var l ir.Link
		if err := rows.Scan(&l.Relation, &l.Source, &l.Target, &l.Position); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}

func loadSequences(ctx context.Context, db queryer) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, value FROM sequences ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequences: %w", err)
	}
	return out, nil
}

// scanRow scans the querysql.RowColumns of one result row.
func scanRow(rows *sql.Rows) (ir.Row, error) {
	var (
		row              ir.Row
		created, updated string
		attrs            string
	)
	if err := rows.Scan(&row.Seq, &row.ID, &row.Type, &row.Version, &created, &updated, &attrs); err != nil {
		return ir.Row{}, fmt.Errorf("scan instance: %w", err)
	}
	var err error
	if row.Created, err = parseTime("created_at", created); err != nil {
		return ir.Row{}, fmt.Errorf("instance %s: %w", row.ID, err)
	}
	if row.Updated, err = parseTime("updated_at", updated); err != nil {
		return ir.Row{}, fmt.Errorf("instance %s: %w", row.ID, err)
	}
	if row.Attrs, err = unmarshalAttrs(attrs); err != nil {
		return ir.Row{}, fmt.Errorf("instance %s: %w", row.ID, err)
	}
	return row, nil
}
