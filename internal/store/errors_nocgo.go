//go:build !cgo

package store

// cgoExtendedCode reports no code: without cgo, mattn/go-sqlite3 is a stub
// that never produces sqlite3.Error values.
func cgoExtendedCode(err error) (int, bool) {
	return 0, false
}
