package env

import "fmt"

// Scope names a variable namespace for getVariable lookups.
type Scope string

const (
	// ScopeEnvironment reads configured overrides, then the process environment.
	ScopeEnvironment Scope = "ENVIRONMENT"

	// ScopeSystem reads configured system properties and the built-in
	// current_timestamp, current_date and current_time.
	ScopeSystem Scope = "SYSTEM"

	// ScopeSequence increments and returns a named sequence.
	ScopeSequence Scope = "SEQUENCE"
)

// ValidateScope checks that s is one of ENVIRONMENT, SYSTEM or SEQUENCE.
// Scope names are case-sensitive.
func ValidateScope(s string) error {
	switch Scope(s) {
	case ScopeEnvironment, ScopeSystem, ScopeSequence:
		return nil
	}
	return fmt.Errorf("invalid variable scope %q: must be ENVIRONMENT, SYSTEM, or SEQUENCE", s)
}
