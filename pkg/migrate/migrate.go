package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"path/filepath"
	"strconv"

	"github.com/pressly/goose/v3"
)

// The SQL files ship inside the binary so migrations run the same from
// any working directory.
//
//go:embed migrations
var migrationsFS embed.FS

const migrationsRoot = "migrations"

// Service migration directories. Each service owns its schema and runs
// goose against its own directory only.
const (
	ServicePayments      = "payments"
	ServiceRisk          = "risk"
	ServiceLedger        = "ledger"
	ServiceNotifications = "notifications"
)

// DirFor returns the embedded migration directory for the named service.
func DirFor(service string) string {
	return path.Join(migrationsRoot, service)
}

// SourceDirFor returns the on-disk directory for the named service,
// relative to the repository root. Only the create scaffolding writes
// there; everything else reads the embedded copies.
func SourceDirFor(service string) string {
	return filepath.Join("pkg", "migrate", migrationsRoot, service)
}

// Run executes a standard goose command that requires a DB connection.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	goose.SetBaseFS(migrationsFS)

	// LedgerPay is Postgres today
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
