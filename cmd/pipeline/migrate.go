package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"docpipeline/internal/database"
	"docpipeline/internal/database/migration"
)

var migrateCommand = &cli.Command{
	Name:   "migrate",
	Usage:  "Create the pipeline tables when they are missing",
	Action: migrate,
}

func migrate(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host)
}
