package storage

import (
	"fmt"
	"log/slog"
	"strings"
)

// NewStore builds an uninitialized store. path is the database location for
// badger and sqlite; an empty badger path keeps the database in memory.
func NewStore(kind, path string, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(kind) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return NewBadgerStore(BadgerConfig{Path: path, InMemory: path == "", Logger: logger}), nil
	case "sqlite":
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
