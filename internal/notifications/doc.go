// Package notifications delivers pipeline events via ntfy.
//
// The service publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set. Each event category can be toggled
// individually so a quiet deployment only hears about errors.
package notifications
