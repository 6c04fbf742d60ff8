// Package classify maps arbitrary errors onto a closed set of semantic kinds.
//
// The same taxonomy drives dead-letter persistence, retry decisions, and the
// fixed caller-facing messages, so retry and display logic never depend on raw
// provider error text.
package classify
