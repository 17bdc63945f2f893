// Package logging provides a process-wide structured logger for colstore.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. Storage engine
// components obtain their loggers through this package so that the embedding
// application controls level and destination from a single place.
//
// # Initialisation
//
// Call Init (or InitDefault for defaults) once at program startup:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes WARN-level text logs to stderr.
//
// # Retrieving the logger
//
//	logger := logging.GetLogger()
//	logger.Info("database opened", "path", path)
//
// If GetLogger is called before Init, a default stderr logger is created
// lazily (via sync.Once).
//
// # Context helpers
//
//	log := logging.WithSession(id, path) // adds session and path fields
//	log := logging.WithVersion(v)        // adds version field
//	log := logging.WithTable(name)       // adds table field
//
// Nothing on the per-row path logs; structural events (commit, advance,
// remap, ring buffer growth) log at DEBUG.
package logging
