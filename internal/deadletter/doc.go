// Package deadletter persists failed transcription attempts in SQLite so the
// underlying audio survives for later retry, inspection, or expiry.
package deadletter
