package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"

	// EmbeddedDir selects the migrations compiled into the binary.
	EmbeddedDir = "embedded"

	embeddedRoot = "migrations"
	dialect      = "postgres"
)

//go:embed migrations/*.sql
var embedded embed.FS

// prepare points goose at either the embedded files or a directory on disk
// and returns the directory goose should read.
func prepare(dir string) (string, error) {
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if dir == EmbeddedDir {
		goose.SetBaseFS(embedded)
		return embeddedRoot, nil
	}
	goose.SetBaseFS(nil)
	return dir, nil
}

// Run executes a goose command (up, down, status, ...) against db.
func Run(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	if db == nil || dir == "" {
		return fmt.Errorf("db and dir are required")
	}
	root, err := prepare(dir)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, root, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != len(versionLayout) {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	root, err := prepare(dir)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, root, version)
	case current > version:
		err = goose.DownToContext(ctx, db, root, version)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return nil
}
