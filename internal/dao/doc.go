// Package dao executes model-driven CRUD, navigation and reference
// operations.
//
// An Engine holds the schema graph, the identifier provider, the variable
// environment and one view per type. A Session binds it to one ambient
// transaction through an Executor; every mutating call runs in a savepoint
// of that transaction, so a failed call leaves the store as it was.
//
// VIEWS:
//
// A row has one most specific entity type and is served through that type,
// any ancestor, and any transfer object mapped onto one of them. A view
// exposes the members of its own type only. Mapped members rename entity
// members, derived members evaluate against the entity instance and
// transient members are accepted on input and never stored.
//
// PAYLOADS:
//
// Output payloads carry the identifier, entity type, version and both
// timestamps under reserved keys, then the attributes with a value, then
// relations per the Mask. Reserved keys on input are ignored except the
// identifier (update target, reference) and the version (update
// precondition).
//
// ERRORS:
//
// Every failure the caller can act on is an *Error with a code:
// VALIDATION, ARGUMENT, CONFLICT or STATE. Executor and evaluation errors
// pass through wrapped.
package dao
