//go:build cgo

package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestConstraintClassification(t *testing.T) {
	assert.False(t, IsUniqueConstraintError(nil))
	assert.False(t, IsForeignKeyConstraintError(nil))
	assert.True(t, IsUniqueConstraintError(errors.New("UNIQUE constraint failed: instances.id")))
	assert.True(t, IsForeignKeyConstraintError(errors.New("FOREIGN KEY constraint failed")))
	assert.False(t, IsUniqueConstraintError(errors.New("disk I/O error")))
	assert.False(t, IsForeignKeyConstraintError(errors.New("CHECK constraint failed: version >= 1")))

	fk := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}
	assert.True(t, IsForeignKeyConstraintError(fmt.Errorf("delete instances: %w", fk)))
	assert.False(t, IsUniqueConstraintError(fk))
}
