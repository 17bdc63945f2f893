package logging

import (
	"log/slog"
)

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("shared_group")
//	log.Debug("lock file initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithTable creates a logger with table context.
//
// Example:
//
//	log := logging.WithTable("people")
//	log.Debug("search index created", "column", 2)
func WithTable(tableName string) *slog.Logger {
	return GetLogger().With("table", tableName)
}

// WithVersion creates a logger tagged with a snapshot version.
func WithVersion(version uint64) *slog.Logger {
	return GetLogger().With("version", version)
}

// WithSession creates a logger for one SharedGroup session.
//
// Example:
//
//	log := logging.WithSession(sessionID, "/data/app.db")
//	log.Debug("advanced read", "from", 3, "to", 5)
func WithSession(sessionID, path string) *slog.Logger {
	return GetLogger().With("session", sessionID, "path", path)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Warn("history trim failed", "below", version)
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
