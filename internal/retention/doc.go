// Package retention purges dead-letter entries and their audio once they
// age past the configured window.
package retention
