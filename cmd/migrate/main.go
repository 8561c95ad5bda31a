// Package main provides a CLI tool for database migrations and tip seeding.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carbon-tracker/internal/config"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the carbon tracker database",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
			return nil
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				logging.Info("Running Postgres migrations...")
				if err := storage.RunMigrations(cfg.Database.Postgres.DSN()); err != nil {
					return err
				}
				logging.Info("Postgres migrations completed successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				logging.Info("Rolling back Postgres migration...")
				if err := storage.RollbackMigrations(cfg.Database.Postgres.DSN()); err != nil {
					return err
				}
				logging.Info("Postgres migration rolled back successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				version, dirty, err := storage.MigrationVersion(cfg.Database.Postgres.DSN())
				if err != nil {
					return err
				}
				cmd.Printf("Current Postgres migration version: %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
		newSeedTipsCmd(func() *config.Config { return cfg }),
	)

	return root
}

func newSeedTipsCmd(getConfig func() *config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-tips",
		Short: "Insert tips from a YAML file",
		Long: `Reads a YAML file mapping tip categories to messages and inserts the
tips that are not present yet. Cached tip lists are dropped afterwards.`,
		Example: `  migrate seed-tips --file tips.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open tips file: %w", err)
			}
			defer f.Close()

			tips, err := storage.ParseTips(f)
			if err != nil {
				return err
			}

			db, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			inserted, err := storage.NewTipRepository(db).Seed(ctx, tips)
			if err != nil {
				return err
			}
			cmd.Printf("Seeded %d of %d tips\n", inserted, len(tips))

			if !cfg.Database.Redis.Enabled {
				return nil
			}
			if err := invalidateTipCache(ctx, cfg); err != nil {
				logging.GetGlobalLogger().WithError(err).Warn("Cached tips not cleared, they will expire on their own")
				return nil
			}
			cmd.Println("Cleared cached tip lists")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML file of tips keyed by category")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// invalidateTipCache drops every cached tip list so reads see the seeded
// catalogue.
func invalidateTipCache(ctx context.Context, cfg *config.Config) error {
	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer redis.Close()

	cache := storage.NewCacheService(redis, cfg.Cache.TTL)
	return cache.InvalidatePattern(ctx, storage.GenerateCacheKey(storage.CacheKeyTips, "*"))
}
