// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"net/url"
	"strings"
	"sync"

	"examprep/internal/config"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// OpenTelemetry SQL instrumentation
	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// DefaultDatabaseConfig returns the default pool configuration for url
func DefaultDatabaseConfig(databaseURL string) config.DatabaseConfig {
	return config.DatabaseConfig{
		URL:             databaseURL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
	}
}

// InitDBWithConfig opens the instrumented connection and applies pending migrations
func (dm *Manager) InitDBWithConfig(ctx context.Context, cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "InitDBWithConfig",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Bool("migrations.enabled", true),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.InitDBWithoutMigrations(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := dm.RunMigrations(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after migration failure", closeErr)
		}
		return nil, err
	}

	return db, nil
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	// url.Parse accepts a key=value DSN as a bare path; only trust it with a scheme
	if u, err := url.Parse(databaseURL); err == nil && u.Scheme != "" && u.Path != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}

	// key=value DSN form
	for _, field := range strings.Fields(databaseURL) {
		if name, ok := strings.CutPrefix(field, "dbname="); ok && name != "" {
			return name
		}
	}

	return "examprep"
}

// InitDBWithoutMigrations initializes and returns a database connection without running migrations
func (dm *Manager) InitDBWithoutMigrations(ctx context.Context, cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "InitDBWithoutMigrations",
		attribute.String("database.url", contextutils.MaskDatabaseURL(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	if cfg.URL == "" {
		return nil, contextutils.NewErrorf(contextutils.ErrMissingRequired, "database url is not configured")
	}

	// Register OpenTelemetry SQL driver once per process and reuse the name
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.TraceQueryWithArgs(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to ping database: %w", err)
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"database":          extractDatabaseName(cfg.URL),
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, nil
}

// RunMigrations applies the embedded migrations to db
func (dm *Manager) RunMigrations(ctx context.Context, db *sql.DB) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "RunMigrations",
		attribute.String("db.system", "postgresql"),
		attribute.String("migration.type", "golang_migrate"),
	)
	defer observability.FinishSpan(span, &err)

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return contextutils.WrapError(err, "failed to open embedded migrations")
	}
	// The migrate instance is not closed: closing it would close db as well.
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Error closing migration source", closeErr)
		}
	}()

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
	if err != nil {
		return contextutils.WrapError(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize golang-migrate")
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		dm.logger.Info(ctx, "No new migrations to apply")
		return nil
	}
	if err != nil {
		return contextutils.WrapError(err, "golang-migrate up failed")
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		span.SetAttributes(attribute.Int("migration.version", int(version)), attribute.Bool("migration.dirty", dirty))
	}
	dm.logger.Info(ctx, "Migrations applied successfully", map[string]interface{}{"version": version})
	return nil
}

// OpenGorm wraps an already instrumented connection in a gorm handle.
// gorm's own logging is silenced; queries are traced by otelsql.
func OpenGorm(db *sql.DB) (result0 *gorm.DB, err error) {
	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to open gorm: %w", err)
	}
	return gdb, nil
}

// Stats holds row counts reported by the admin CLI
type Stats struct {
	Tests            int64
	Questions        int64
	Answers          int64
	Sessions         int64
	CompletedSession int64
}

// CollectStats counts rows in the exam tables
func (dm *Manager) CollectStats(ctx context.Context, db *sql.DB) (result0 *Stats, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "CollectStats")
	defer observability.FinishSpan(span, &err)

	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM tests", &stats.Tests},
		{"SELECT COUNT(*) FROM questions", &stats.Questions},
		{"SELECT COUNT(*) FROM answers", &stats.Answers},
		{"SELECT COUNT(*) FROM test_histories", &stats.Sessions},
		{"SELECT COUNT(*) FROM test_histories WHERE status = 'completed'", &stats.CompletedSession},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to run %q: %w", q.query, err)
		}
	}
	return stats, nil
}
