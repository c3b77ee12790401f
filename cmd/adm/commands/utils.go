package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"examprep/internal/config"
	"examprep/internal/di"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"
)

// withContainer initializes the service container for one command and shuts it down afterwards
func withContainer(ctx context.Context, cfg *config.Config, logger *observability.Logger, fn func(*di.ServiceContainer) error) error {
	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		return contextutils.WrapError(err, "failed to initialize services")
	}
	defer func() {
		if err := container.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "Failed to shut down services", map[string]interface{}{"error": err.Error()})
		}
	}()
	return fn(container)
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(ctx context.Context, db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}

	var host string
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(inet_server_addr()::text, 'local socket')").Scan(&host); err != nil {
		return fmt.Sprintf("Connected to %s", dbName)
	}

	return fmt.Sprintf("Connected to %s on %s", dbName, host)
}

// printJSON writes v indented to w
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
