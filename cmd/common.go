package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chorus-run/chorus/internal/config"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/store/pg"
	"github.com/chorus-run/chorus/internal/store/sqlite"
	"github.com/chorus-run/chorus/internal/workspace"
)

// openStore opens the store backend named by cfg.Database.Mode,
// applying embedded migrations (C4's schema versioning) as a side
// effect of Open.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.IsPostgres() {
		return pg.Open(ctx, cfg.Database.PostgresDSN)
	}
	path := cfg.Database.SQLitePath
	if path == "" {
		path = filepath.Join(config.Home(), "db", "chorus.db")
	}
	return sqlite.Open(ctx, path)
}

// openWorkspace returns the workspace directory rooted at CHORUS_HOME,
// creating it if absent.
func openWorkspace() (*workspace.Directory, error) {
	dirs := workspace.New(config.Home(), "")
	if err := dirs.EnsureHome(); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return dirs, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

// fail prints err and exits 1. Used by CLI subcommands whose Run cannot
// return an error (cobra logs RunE errors twice with usage noise).
func fail(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}
