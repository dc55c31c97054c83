package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound is returned when no image record matches the lookup.
	ErrNotFound = errors.New("image record not found")
	// ErrDuplicatePath is returned when a record already owns the path.
	ErrDuplicatePath = errors.New("image path already exists")
	// ErrInvalidVariant is returned when a variant name is outside the fixed set.
	ErrInvalidVariant = errors.New("invalid variant name")
)

// Database manages image metadata records.
type Database struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New opens the database, applies pending migrations and returns a ready
// Database. For sqlite3, dsn is the path to the database FILE and its parent
// directory must already exist and be writable. For pgx, dsn is a PostgreSQL
// connection string.
func New(ctx context.Context, driver, dsn string) (*Database, error) {
	connStr := dsn
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		logging.Info("Database path: %s", dsn)
		if err := diagnoseDatabasePermissions(dsn); err != nil {
			logging.Warn("Database permission diagnostics: %v", err)
		}
		// busy_timeout helps prevent "database is locked" errors
		connStr = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dsn)
	case DriverPostgres:
		logging.Info("Database driver: postgres")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		driver: driver,
		now:    time.Now,
	}

	if err := d.migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	logging.Info("Database initialized successfully (%s)", driver)
	return d, nil
}

func (d *Database) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})

	dialect := "sqlite3"
	if d.driver == DriverPostgres {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, d.db, "migrations"); err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
		return err
	}
	return nil
}

// gooseLogger routes migration output through the logging package.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logging.Info(strings.TrimSuffix(format, "\n"), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logging.Fatal(strings.TrimSuffix(format, "\n"), v...)
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Driver returns the driver name the database was opened with.
func (d *Database) Driver() string {
	return d.driver
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// recordQuery records metrics for a database query
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	if !dirInfo.IsDir() {
		return fmt.Errorf("database parent %s is not a directory", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("database directory %s is not writable: %w", dir, err)
	}
	if err := f.Close(); err != nil {
		logging.Debug("failed to close write test file: %v", err)
	}
	if err := os.Remove(testFile); err != nil {
		logging.Debug("failed to remove write test file: %v", err)
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot stat database file: %w", err)
	}
	if info.Mode().Perm()&0o200 == 0 {
		return fmt.Errorf("database file %s is not writable (mode %v)", dbPath, info.Mode().Perm())
	}
	return nil
}
