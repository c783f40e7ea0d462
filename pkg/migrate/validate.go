package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations in dir, or the embedded set when dir is
// EmbeddedDir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if dir == EmbeddedDir {
		return ValidateFS(embedded, embeddedRoot)
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS checks filenames, version uniqueness and the goose annotations
// of every migration under root. All problems are reported, not just the
// first.
func ValidateFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", root, err)
	}

	seen := map[string]string{} // version -> filename
	var errs error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
			continue
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(name, string(b)))
	}

	if len(seen) == 0 && errs == nil {
		return fmt.Errorf("no migrations found in %q", root)
	}
	return errs
}

func checkAnnotations(name, txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", name)
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	if ends := strings.Count(txt, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd", name, begins, ends)
	}
	return nil
}
