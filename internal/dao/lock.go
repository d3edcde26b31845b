package dao

import (
	"context"
	"errors"
	"time"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/measure"
)

// now is the write clock. Timestamps are UTC so stored text sorts
// chronologically.
func (s *Session) now() time.Time {
	return s.engine.env.Now().UTC()
}

// newRow stamps a fresh row: version 1, created == updated == now.
func (s *Session) newRow(id, typeName string, attrs map[string]any) ir.Row {
	now := s.now()
	return ir.Row{ID: id, Type: typeName, Version: 1, Created: now, Updated: now, Attrs: attrs}
}

// precondition reads the optional version precondition of an update
// payload. Zero means unconditional. The value is never written.
func precondition(f failure, p *ir.Payload) (int64, error) {
	v, ok := p.Get(ir.VersionKey)
	if !ok || ir.IsNull(v) {
		return 0, nil
	}
	d, ok := ir.AsDecimal(v)
	if !ok {
		return 0, f.validation(RuleVersion, "version must be a number, got %s", ir.KindName(v))
	}
	n, err := measure.Int64(d)
	if err != nil || n < 1 {
		return 0, f.validation(RuleVersion, "version must be a positive integer, got %s", ir.Format(v))
	}
	return n, nil
}

// bump merges attrs into the row, increments its version and advances its
// updated timestamp. With expected > 0 the write happens only when the
// stored version still equals expected.
func (s *Session) bump(ctx context.Context, f failure, id string, attrs map[string]any, expected int64) (int64, error) {
	version, err := s.exec.Update(ctx, ir.Update{
		ID:              id,
		Attrs:           attrs,
		ExpectedVersion: expected,
		Updated:         s.now(),
	})
	if err == nil {
		return version, nil
	}
	var stale *ir.StaleVersionError
	switch {
	case errors.As(err, &stale):
		return 0, f.with(id).conflict(stale.Expected, stale.Stored)
	case errors.Is(err, ir.ErrStaleVersion):
		e := f.with(id).conflict(expected, 0)
		e.Message = "stale version precondition"
		e.Err = err
		return 0, e
	case errors.Is(err, ir.ErrRowNotFound):
		return 0, f.with(id).state(RuleNotFound, "instance does not exist")
	}
	return 0, err
}
