// Package errors provides the structured error model for zoned device
// operations: a small class taxonomy, the backend diagnostic code preserved
// verbatim, and builder-style context. Errors are returned as values from
// every fallible call; nothing is thrown across the backend boundary.
package errors
