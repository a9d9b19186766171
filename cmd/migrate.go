package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd applies the embedded schema to the configured store.
// Unlike the teacher's golang-migrate-CLI-driven up/down/force/goto
// subcommands, Chorus's stores self-apply their embedded migrations on
// every Open (internal/store/sqlite and internal/store/pg), so this
// command is a thin "open and report" wrapper rather than a migration
// runner in its own right.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured store and report its status",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				fail(err)
			}
			db, err := openStore(context.Background(), cfg)
			if err != nil {
				fail(err)
			}
			defer db.Close()
			mode := "sqlite"
			if cfg.Database.IsPostgres() {
				mode = "postgres"
			}
			fmt.Printf("migrations applied (%s)\n", mode)
		},
	}
}
