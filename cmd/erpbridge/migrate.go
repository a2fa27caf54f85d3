package main

import (
	"errors"
	"log/slog"

	"github.com/erpbridge/erpbridge/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var migrateCmd = structuredLog(&cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		source, _ := cmd.Flags().GetString("source")

		m, err := migrate.New(source, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				slog.Info("no changes to apply")
				return nil
			}
			return err
		}

		version, dirty, _ := m.Version()
		slog.Info("migrations applied successfully", "version", version, "dirty", dirty)
		return nil
	},
})

func init() {
	migrateCmd.Flags().String("source", "file://db/migrations", "migration source URL")
}
