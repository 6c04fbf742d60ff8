// Package daemon hosts the long-running parley services: the authenticated
// HTTP API, the chat relay, and the daily retention sweep. A lock file
// enforces a single instance per machine.
package daemon
