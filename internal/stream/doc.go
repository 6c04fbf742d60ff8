// Package stream reassembles server-sent-event chat responses into typed
// callbacks and wraps the HTTP call in a bounded retry loop.
package stream
