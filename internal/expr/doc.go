// Package expr parses and evaluates model expressions.
//
// Expressions drive derived members, defaults, filters and static data.
// The grammar has navigation ("self.customer.name"), calls with an
// optional lambda ("self.items!filter(i | i.quantity > 5)"), type-level
// calls ("Order!all()", "Integer!getVariable('ENVIRONMENT', 'LIMIT')"),
// the usual arithmetic, comparison and boolean operators, a ternary, and
// literals for strings, numbers, measured amounts ("5[kg]"), enumeration
// literals ("Status#OPEN" or "#OPEN") and temporals in backticks.
//
// UNDEFINED:
//
// A missing attribute or an unset reference evaluates to ir.Null. Any
// operator with an undefined operand yields undefined, including and/or.
// Predicates in filter/exists/forAll treat undefined as false, so a filter
// against an unset variable returns an empty collection. Aggregates over
// an empty collection (sum, avg, min, max, head, tail) are undefined;
// count() is zero.
//
// Type and resolution errors are *EvalError. Malformed input is
// *SyntaxError. Parsed expressions are cached process-wide.
//
// Evaluation reads persisted data through Source and variables through
// Environment; the package never touches storage directly.
package expr
