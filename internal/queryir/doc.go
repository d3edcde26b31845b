// Package queryir provides the query intermediate representation used at the
// Statement Executor boundary.
//
// The DAO never writes SQL. It describes what it wants to read as a Query
// and the executor compiles it (see internal/querysql):
//
//	[DAO] → [Query IR] → [querysql] → [SQLite]
//
// QUERIES:
//
//   - Select: instances by most specific type, identifier, attribute
//     predicates, ordering and paging
//   - Count: the number of instances a Select would return, ignoring
//     ordering and paging
//   - Links: relation edges by storage key, source and/or target
//
// PREDICATES:
//
//   - Equals: stored attribute = literal value
//   - IsNull: stored attribute absent or null
//   - In: stored attribute equals one of several literals
//   - And: conjunction (empty = always true)
//
// Predicates address stored attributes only. Derived members are evaluated
// by the DAO after rows are loaded.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods so backend compilers
// can switch exhaustively.
//
// DETERMINISM:
//
// Every compiled query has a total order. Instances fall back to insertion
// order (seq); links order by source insertion, position, then target.
package queryir
