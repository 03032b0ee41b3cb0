package database

import (
	"fmt"
	"log/slog"
)

// NewDatabase builds the configured database service and ensures the schema
// exists. Schema creation is idempotent, which matters for in-memory SQLite
// databases that start empty on every connect.
func NewDatabase(databaseType, connectionString string) (DatabaseService, error) {
	var service DatabaseService
	var err error

	switch databaseType {
	case "sqlite":
		service, err = NewSQLiteDatabase(connectionString)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", databaseType)
	}
	if err != nil {
		return nil, err
	}

	if _, err := service.CreateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	slog.Info("database schema initialized", "type", databaseType)

	return service, nil
}
