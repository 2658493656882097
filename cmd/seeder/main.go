//cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/unclebandit/targetup-dispatch/internal/config"
	"github.com/unclebandit/targetup-dispatch/internal/db"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
	"github.com/unclebandit/targetup-dispatch/pkg/logger"
)

var appLogger *slog.Logger

func main() {
	appLogger = logger.New(os.Getenv("LOG_LEVEL"))

	root := &cobra.Command{
		Use:   "seeder",
		Short: "Schema and seed data for the dispatch service",
	}
	root.AddCommand(migrateCmd())
	root.AddCommand(sqlCmd())
	root.AddCommand(catalogCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, cfg.DatabaseURL, appLogger)
}

func migrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), db.Schema())
				return nil
			}
			database, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.Migrate(cmd.Context(), database); err != nil {
				return err
			}
			appLogger.Info("schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the schema instead of applying it")
	return cmd
}

func sqlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sql [files...]",
		Short: "Execute SQL seed files in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedFiles := args
			if len(seedFiles) == 0 {
				seedFiles = []string{
					"seed/companies.sql",
					"seed/customers.sql",
				}
			}

			database, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.Migrate(cmd.Context(), database); err != nil {
				return err
			}

			for _, file := range seedFiles {
				content, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				if _, err := database.ExecContext(cmd.Context(), string(content)); err != nil {
					return fmt.Errorf("failed to execute %s: %w", file, err)
				}
				appLogger.Info("seeded", "file", file)
			}
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Load per-company field catalogs from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := LoadCatalogSeed(f)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			database, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			repo := &repository.FieldCatalogRepository{DB: database}
			for _, c := range seed.Companies {
				if err := repo.Upsert(cmd.Context(), c.CompanyID, c.Fields); err != nil {
					return err
				}
				appLogger.Info("field catalog loaded", "company_id", c.CompanyID, "fields", len(c.Fields))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed/field_catalog.yaml", "catalog YAML file")
	return cmd
}
