// Package env provides the variable environment seen by expressions:
// getVariable scopes, named sequences and the evaluation clock.
package env
