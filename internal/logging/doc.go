// Package logging constructs slog loggers from application configuration and
// provides attribute helpers shared across components.
package logging
