package store

import (
	"errors"
	"strings"
)

// Extended SQLite result codes for constraint violations.
const (
	codeConstraintForeignKey = 787
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// codeError is implemented by modernc.org/sqlite errors.
type codeError interface {
	Code() int
}

// IsUniqueConstraintError reports a uniqueness (or primary key) violation,
// e.g. inserting an identifier twice.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := extendedCode(err); ok {
		return code == codeConstraintUnique || code == codeConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyConstraintError reports a foreign key violation, e.g. deleting
// an instance that is still linked.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := extendedCode(err); ok {
		return code == codeConstraintForeignKey
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// extendedCode extracts the SQLite extended result code from either driver.
func extendedCode(err error) (int, bool) {
	if code, ok := cgoExtendedCode(err); ok {
		return code, true
	}
	if ce, ok := asError[codeError](err); ok {
		return ce.Code(), true
	}
	return 0, false
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
