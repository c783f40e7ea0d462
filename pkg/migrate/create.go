package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

const sqlTemplate = `-- +goose Up
-- %[1]s

-- +goose Down
-- rollback %[1]s
`

// CreateSQLMigration writes an empty goose migration named
// <version>_<name>.sql into dir, with the version taken from now in UTC.
// It refuses to reuse a version that already exists in dir.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" || dir == EmbeddedDir {
		return "", fmt.Errorf("a directory on disk is required")
	}
	safe := strings.Trim(nameSanitizeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := now.UTC().Format(versionLayout)
	clash, err := filepath.Glob(filepath.Join(dir, version+"_*.sql"))
	if err != nil {
		return "", fmt.Errorf("glob %q: %w", dir, err)
	}
	if len(clash) > 0 {
		return "", fmt.Errorf("version %s already used by %s", version, filepath.Base(clash[0]))
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if err := os.WriteFile(path, []byte(fmt.Sprintf(sqlTemplate, safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
