// Package orchestrator coordinates transcription attempts against the
// provider, preserving failed durable attempts as dead-letter entries and
// replaying them on retry.
package orchestrator
