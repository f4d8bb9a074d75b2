package main

import (
	"flag"
	"os"

	"polimarket/config"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"go.uber.org/zap"
)

func main() {
	flag.Parse()
	args := flag.Args()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		panic(err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	if len(args) < 1 {
		logger.Fatal("usage: migrate <up|down|version>")
	}

	migrator, err := store.NewMigrator(cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to open migrations", zap.Error(err))
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	switch args[0] {
	case "up":
		applied, err := migrator.Up()
		if err != nil {
			logger.Error("Migration up failed", zap.Error(err))
			os.Exit(1)
		}
		if !applied {
			logger.Info("No pending migrations")
			return
		}
		logger.Info("Migrations applied")

	case "down":
		rolledBack, err := migrator.Down()
		if err != nil {
			logger.Error("Migration down failed", zap.Error(err))
			os.Exit(1)
		}
		if !rolledBack {
			logger.Info("No migrations to roll back")
			return
		}
		logger.Info("Migration rolled back")

	case "version":
		version, dirty, ok, err := migrator.Version()
		if err != nil {
			logger.Error("Failed to read version", zap.Error(err))
			os.Exit(1)
		}
		if !ok {
			logger.Info("No migrations applied yet")
			return
		}
		logger.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	default:
		logger.Error("Unknown command", zap.String("command", args[0]))
		os.Exit(1)
	}
}
