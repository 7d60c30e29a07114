package main

import (
	"jasper_srv/internal/config"
	"jasper_srv/internal/database"
	"jasper_srv/internal/di"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := di.NewLogger(cfg)

	// Create database connection
	dbCfg := database.FromAppConfig(cfg)
	dbCfg.Debug = true

	db, err := database.NewDatabase(dbCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Run migrations
	if err := database.AutoMigrate(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	logger.WithField("driver", dbCfg.Driver).Info("Migrations completed successfully")
}
