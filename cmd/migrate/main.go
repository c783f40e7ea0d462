package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/migrate"
)

const serviceKind = "migrate"

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.EmbeddedDir, "migrations directory, or \"embedded\" for the files compiled into the binary")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	// create and validate only touch files; they run without config
	switch opts.cmd {
	case "create":
		if opts.dir == migrate.EmbeddedDir {
			opts.dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		exitOn("create migration", err)
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn("validate migrations", migrate.ValidateDir(opts.dir))
		fmt.Println("migrations valid:", opts.dir)
		return
	}

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	exitOn("load config", err)

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})
	if err := run(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.SQL()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("-version is required for -cmd=version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
}

func exitOn(action string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
