// Package ir provides the payload value model shared by every layer of the
// runtime.
//
// This package contains type definitions and conversions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are a sealed set of variants; consumers switch exhaustively
//   - NO float types - decimals use apd, integers use int64
//   - Payload keys keep insertion order; canonical JSON sorts them
//   - Keys with the "__" prefix are engine-owned (identifier, version,
//     timestamps) and never persisted as attributes
//   - Stored timestamps are fixed-width UTC text so lexical order is
//     chronological
package ir
