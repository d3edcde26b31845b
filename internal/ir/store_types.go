package ir

import (
	"errors"
	"fmt"
	"time"
)

// NOTE: These are store-boundary types, not part of the payload model.
// Attrs holds plain JSON-compatible values as persisted.

// Executor sentinel errors. Stores return them (possibly wrapped) so the
// engine can map them onto its own taxonomy.
var (
	// ErrStaleVersion means a conditional update found a different version.
	ErrStaleVersion = errors.New("stale version")

	// ErrRowNotFound means the addressed instance row does not exist.
	ErrRowNotFound = errors.New("row not found")
)

// StaleVersionError reports a failed version precondition.
// It matches ErrStaleVersion with errors.Is.
type StaleVersionError struct {
	ID       string
	Expected int64
	Stored   int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("instance %s: expected version %d, stored version %d", e.ID, e.Expected, e.Stored)
}

// Is reports whether target is ErrStaleVersion.
func (e *StaleVersionError) Is(target error) bool {
	return target == ErrStaleVersion
}

// Row is one persisted instance.
type Row struct {
	Seq     int64          `json:"seq"`  // Auto-increment (insertion order)
	ID      string         `json:"id"`   // Opaque identifier
	Type    string         `json:"type"` // Most specific type
	Version int64          `json:"version"`
	Created time.Time      `json:"created_at"`
	Updated time.Time      `json:"updated_at"`
	Attrs   map[string]any `json:"attrs"`
}

// Link is one relation edge. Relation is the storage key shared by two-way
// partners; Source is the owning end of that key.
type Link struct {
	Relation string `json:"relation"`
	Source   string `json:"source_id"`
	Target   string `json:"target_id"`
	Position int64  `json:"position"`
}

// Update describes a conditional instance update.
// ExpectedVersion 0 skips the version check.
type Update struct {
	ID              string
	Attrs           map[string]any // merged into stored attrs; nil values remove keys
	ExpectedVersion int64
	Updated         time.Time
}

// FormatStoreTime renders t as fixed-width UTC text.
func FormatStoreTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseStoreTime parses text written by FormatStoreTime.
func ParseStoreTime(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
